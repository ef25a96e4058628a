// Package uploader wraps the object stores used for review images and avatars.
package uploader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"review_board/internal/pkg/config"
)

// Uploader 对象存储接口
type Uploader interface {
	// Upload 上传对象；overwrite 为 false 时 key 已存在会失败
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string, overwrite bool) error
	// PublicURL 返回对象的公开访问地址
	PublicURL(key string) string
	// Delete 删除对象，对象不存在不算错误
	Delete(ctx context.Context, key string) error
}

// New 根据 storage.provider 创建上传器
func New(cfg *config.Config) (Uploader, error) {
	switch cfg.Storage.Provider {
	case "oss":
		return NewAliyunOSSUploader(cfg.OSS)
	case "s3":
		return NewS3Uploader(context.Background(), cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

var imageExts = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// ImageExt 返回图片 MIME 类型对应的扩展名，非支持的类型返回 false
func ImageExt(contentType string) (string, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	ext, ok := imageExts[ct]
	return ext, ok
}

// SniffContentType 根据文件头判断真实类型，不信任客户端声明
func SniffContentType(head []byte) string {
	return http.DetectContentType(head)
}
