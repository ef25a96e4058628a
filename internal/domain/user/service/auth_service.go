package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"review_board/internal/domain/user/model"
	"review_board/internal/domain/user/repository"
	"review_board/internal/pkg/otp"
	"review_board/pkg/apperr"
	"review_board/pkg/cache"
	"review_board/pkg/security"
	"review_board/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength 密码最短长度
const MinPasswordLength = 8

const revokedKeyPrefix = "revoked:"

// AuthConfig token 签名配置
type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// Session 登录结果
type Session struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Profile   *model.Profile `json:"profile"`
}

// AuthService 账号认证
type AuthService interface {
	SignUp(ctx context.Context, email, password, username string) (*model.Profile, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// SignOut 吊销 token 直到其过期
	SignOut(ctx context.Context, token string) error
	// CurrentSession 无效、过期或已吊销的 token 返回 nil, nil
	CurrentSession(ctx context.Context, token string) (*model.Profile, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
	SendPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

type authService struct {
	repo     repository.UserRepository
	profiles ProfileStore
	otp      otp.OTPService
	cache    cache.CacheService
	cfg      AuthConfig
	log      *zap.Logger

	email    *security.EmailValidator
	username *security.StringValidator
}

// NewAuthService 创建认证服务
func NewAuthService(repo repository.UserRepository, profiles ProfileStore, otpService otp.OTPService,
	c cache.CacheService, cfg AuthConfig, log *zap.Logger) AuthService {
	return &authService{
		repo:     repo,
		profiles: profiles,
		otp:      otpService,
		cache:    c,
		cfg:      cfg,
		log:      log,
		email:    security.NewEmailValidator(),
		username: newUsernameValidator(),
	}
}

var usernameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

func newUsernameValidator() *security.StringValidator {
	return security.NewStringValidator("username", 3, 32, true).WithPattern(`^[A-Za-z0-9_.-]+$`)
}

// defaultUsername 邮箱前缀，不可用时为 user_<id 前 8 位>
func defaultUsername(email, id string) string {
	local := email
	if i := strings.Index(email, "@"); i >= 0 {
		local = email[:i]
	}
	local = usernameChars.ReplaceAllString(local, "")
	if len(local) > 32 {
		local = local[:32]
	}
	if len(local) >= 3 {
		return local
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return "user_" + id
}

func validatePassword(op, password string) error {
	if len(password) < MinPasswordLength {
		return apperr.New(apperr.KindValidation, op, "password must be at least 8 characters")
	}
	if len(password) > 72 {
		return apperr.New(apperr.KindValidation, op, "password must be at most 72 bytes")
	}
	return nil
}

// SignUp 注册
func (s *authService) SignUp(ctx context.Context, email, password, username string) (*model.Profile, error) {
	const op = "auth.signup"

	email = s.email.Sanitize(email)
	if err := s.email.Validate(email); err != nil {
		return nil, apperr.New(apperr.KindValidation, op, "please enter a valid email address")
	}
	if err := validatePassword(op, password); err != nil {
		return nil, err
	}
	username = s.username.Sanitize(username)
	if username != "" {
		if err := s.username.Validate(username); err != nil {
			return nil, apperr.New(apperr.KindValidation, op, "username must be 3-32 letters, digits, '_', '.' or '-'")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnknown, op, err)
	}

	user := &model.User{Email: email, PasswordHash: string(hash)}
	user.ID = uuid.NewString()
	profile := &model.Profile{Username: username}
	if profile.Username == "" {
		profile.Username = defaultUsername(email, user.ID)
	}
	if err := s.repo.Create(ctx, user, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.New(apperr.KindConflict, op, "this email is already registered")
		}
		return nil, apperr.Remote(apperr.KindPersistence, op, err)
	}

	s.log.Info("user signed up", zap.String("user_id", user.ID))
	return profile, nil
}

// SignIn 登录
func (s *authService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	const op = "auth.signin"
	invalid := apperr.New(apperr.KindUnauthorized, op, "invalid email or password")

	user, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, apperr.Remote(apperr.KindRepository, op, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, invalid
	}

	token, claims, err := utils.GenerateToken(s.cfg.Secret, user.ID, user.Email, s.cfg.TokenTTL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnknown, op, err)
	}

	profile, err := s.loadProfile(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, Profile: profile}, nil
}

// SignOut 已失效的 token 直接视为成功
func (s *authService) SignOut(ctx context.Context, token string) error {
	claims, err := utils.ParseToken(s.cfg.Secret, token)
	if err != nil {
		return nil
	}
	ttl := claims.Remaining(time.Now())
	if ttl <= 0 {
		return nil
	}
	if err := s.cache.Set(ctx, revokedKeyPrefix+claims.TokenID(), true, ttl); err != nil {
		return apperr.Remote(apperr.KindPersistence, "auth.signout", err)
	}
	s.log.Info("user signed out", zap.String("user_id", claims.UserID))
	return nil
}

// CurrentSession 校验 token 并加载资料
func (s *authService) CurrentSession(ctx context.Context, token string) (*model.Profile, error) {
	const op = "auth.session"
	if token == "" {
		return nil, nil
	}
	claims, err := utils.ParseToken(s.cfg.Secret, token)
	if err != nil {
		s.log.Debug("rejecting token", zap.Error(err))
		return nil, nil
	}

	revoked, err := s.cache.Exists(ctx, revokedKeyPrefix+claims.TokenID())
	if err != nil {
		return nil, apperr.Remote(apperr.KindRepository, op, err)
	}
	if revoked {
		return nil, nil
	}

	return s.loadProfile(ctx, claims.UserID, claims.Email)
}

// loadProfile 资料不存在时按邮箱前缀创建
func (s *authService) loadProfile(ctx context.Context, userID, email string) (*model.Profile, error) {
	const op = "auth.load_profile"

	profile, err := s.profiles.Get(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Remote(apperr.KindRepository, op, err)
	}

	profile = &model.Profile{ID: userID, Username: defaultUsername(email, userID)}
	if err := s.repo.CreateProfile(ctx, profile); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.Remote(apperr.KindPersistence, op, err)
	}
	s.log.Info("created missing profile", zap.String("user_id", userID))
	return profile, nil
}

func (s *authService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	profile, err := s.profiles.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Remote(apperr.KindRepository, "auth.is_admin", err)
	}
	return profile.IsAdmin, nil
}

// SendPasswordReset 邮箱未注册时同样返回成功，避免暴露账号是否存在
func (s *authService) SendPasswordReset(ctx context.Context, email string) error {
	const op = "auth.password_reset"

	email = s.email.Sanitize(email)
	if err := s.email.Validate(email); err != nil {
		return apperr.New(apperr.KindValidation, op, "please enter a valid email address")
	}

	_, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Remote(apperr.KindRepository, op, err)
	}

	code, err := s.otp.Send(ctx, email)
	if errors.Is(err, otp.ErrTooFrequent) {
		return apperr.New(apperr.KindBusy, op, "please wait a minute before requesting another code")
	}
	if err != nil {
		return apperr.Remote(apperr.KindPersistence, op, err)
	}
	s.log.Debug("password reset code", zap.String("email", email), zap.String("code", code))
	return nil
}

func (s *authService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	const op = "auth.password_reset_confirm"

	email = s.email.Sanitize(email)
	if err := validatePassword(op, newPassword); err != nil {
		return err
	}

	if err := s.otp.Verify(ctx, email, code); err != nil {
		if errors.Is(err, otp.ErrInvalidCode) {
			return apperr.New(apperr.KindValidation, op, "the reset code is invalid or has expired")
		}
		return apperr.Remote(apperr.KindRepository, op, err)
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.KindValidation, op, "the reset code is invalid or has expired")
		}
		return apperr.Remote(apperr.KindRepository, op, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Wrap(apperr.KindUnknown, op, err)
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return apperr.Remote(apperr.KindPersistence, op, err)
	}
	return nil
}
