package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"review_board/pkg/cache"

	"go.uber.org/zap"
)

const (
	codeTTL        = 15 * time.Minute
	resendInterval = time.Minute
)

var (
	ErrTooFrequent = errors.New("please wait before sending again")
	ErrInvalidCode = errors.New("invalid or expired code")
)

// OTPService 密码重置验证码
type OTPService interface {
	Send(ctx context.Context, email string) (string, error)
	Verify(ctx context.Context, email, code string) error
}

type otpService struct {
	cache     cache.CacheService
	log       *zap.Logger
	fixedCode string
}

// NewOTPService fixedCode 非空时总是发放该验证码，仅用于测试环境
func NewOTPService(c cache.CacheService, log *zap.Logger, fixedCode string) OTPService {
	return &otpService{cache: c, log: log, fixedCode: fixedCode}
}

func key(email string) string {
	return "pwreset:" + strings.ToLower(email)
}

// Send 生成并发送验证码
// 真实场景下应调用邮件服务商接口，这里只写入缓存并记录日志
func (s *otpService) Send(ctx context.Context, email string) (string, error) {
	// 1. 频率限制
	ttl, err := s.cache.TTL(ctx, key(email))
	if err == nil && ttl > codeTTL-resendInterval {
		return "", ErrTooFrequent
	}
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return "", err
	}

	// 2. 生成验证码
	code := s.fixedCode
	if code == "" {
		if code, err = randomCode(); err != nil {
			return "", err
		}
	}

	// 3. 存入缓存
	if err := s.cache.Set(ctx, key(email), code, codeTTL); err != nil {
		return "", err
	}

	// 4. 发送 (Mock: 打印日志)
	s.log.Info("password reset code issued", zap.String("email", email))
	return code, nil
}

// Verify 验证成功后立即删除，防止重放
func (s *otpService) Verify(ctx context.Context, email, code string) error {
	var stored string
	if err := s.cache.Get(ctx, key(email), &stored); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return ErrInvalidCode
		}
		return err
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return ErrInvalidCode
	}
	return s.cache.Delete(ctx, key(email))
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
