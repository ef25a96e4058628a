package uploader

import (
	"context"
	"fmt"
	"io"
	"strings"

	"review_board/internal/pkg/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

type AliyunOSSUploader struct {
	client *oss.Client
	bucket *oss.Bucket
	config config.OSSConfig
}

func NewAliyunOSSUploader(cfg config.OSSConfig) (*AliyunOSSUploader, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, err
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, err
	}

	return &AliyunOSSUploader{
		client: client,
		bucket: bucket,
		config: cfg,
	}, nil
}

func (u *AliyunOSSUploader) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string, overwrite bool) error {
	err := u.bucket.PutObject(key, r,
		oss.WithContext(ctx),
		oss.ContentType(contentType),
		oss.ContentLength(size),
		oss.ForbidOverWrite(!overwrite),
	)
	if err != nil {
		return fmt.Errorf("oss put %s: %w", key, err)
	}
	return nil
}

// PublicURL 假设 bucket 为公共读或挂了 CDN
func (u *AliyunOSSUploader) PublicURL(key string) string {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(u.config.Endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", u.config.BucketName, endpoint, key)
}

func (u *AliyunOSSUploader) Delete(ctx context.Context, key string) error {
	if err := u.bucket.DeleteObject(key, oss.WithContext(ctx)); err != nil {
		return fmt.Errorf("oss delete %s: %w", key, err)
	}
	return nil
}
