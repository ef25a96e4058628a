package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"review_board/internal/domain/user/model"
	"review_board/internal/domain/user/repository"
	"review_board/internal/pkg/uploader"
	"review_board/pkg/apperr"
	"review_board/pkg/security"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// MaxAvatarSize 头像大小上限
const MaxAvatarSize = 2 << 20

// ProfileService 用户资料
type ProfileService interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpdateUsername(ctx context.Context, userID, username string) (*model.Profile, error)
	// UploadAvatar 覆盖写入 avatars/<uid>/avatar.<ext>
	UploadAvatar(ctx context.Context, userID string, data []byte) (*model.Profile, error)
	ChangePassword(ctx context.Context, userID, current, newPassword, confirm string) error
}

type profileService struct {
	repo     repository.UserRepository
	profiles ProfileStore
	storage  uploader.Uploader
	log      *zap.Logger
	username *security.StringValidator
}

func NewProfileService(repo repository.UserRepository, profiles ProfileStore, storage uploader.Uploader, log *zap.Logger) ProfileService {
	return &profileService{
		repo:     repo,
		profiles: profiles,
		storage:  storage,
		log:      log,
		username: newUsernameValidator(),
	}
}

func (s *profileService) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	profile, err := s.profiles.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "profile.get", "profile not found")
	}
	if err != nil {
		return nil, apperr.Remote(apperr.KindRepository, "profile.get", err)
	}
	return profile, nil
}

func (s *profileService) UpdateUsername(ctx context.Context, userID, username string) (*model.Profile, error) {
	const op = "profile.update_username"

	username = s.username.Sanitize(username)
	if username == "" {
		return nil, apperr.New(apperr.KindValidation, op, "please enter a username")
	}
	if err := s.username.Validate(username); err != nil {
		return nil, apperr.New(apperr.KindValidation, op, "username must be 3-32 letters, digits, '_', '.' or '-'")
	}

	if err := s.repo.UpdateUsername(ctx, userID, username); err != nil {
		return nil, s.writeError(op, err)
	}
	s.profiles.Invalidate(ctx, userID)
	return s.GetProfile(ctx, userID)
}

func (s *profileService) UploadAvatar(ctx context.Context, userID string, data []byte) (*model.Profile, error) {
	const op = "profile.upload_avatar"

	if len(data) == 0 {
		return nil, apperr.New(apperr.KindValidation, op, "image is empty")
	}
	if len(data) > MaxAvatarSize {
		return nil, apperr.New(apperr.KindValidation, op, "avatar must be 2MB or smaller")
	}
	contentType := uploader.SniffContentType(data)
	ext, ok := uploader.ImageExt(contentType)
	if !ok {
		return nil, apperr.New(apperr.KindValidation, op, "avatar must be a JPEG, PNG, GIF or WebP file")
	}

	key := fmt.Sprintf("avatars/%s/avatar.%s", userID, ext)
	if err := s.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType, true); err != nil {
		return nil, apperr.Remote(apperr.KindPersistence, op, fmt.Errorf("upload avatar: %w", err))
	}

	if err := s.repo.UpdateAvatar(ctx, userID, s.storage.PublicURL(key)); err != nil {
		// 对象键固定且可覆盖，下次上传会替换，不需要清理
		return nil, s.writeError(op, err)
	}
	s.profiles.Invalidate(ctx, userID)
	return s.GetProfile(ctx, userID)
}

func (s *profileService) ChangePassword(ctx context.Context, userID, current, newPassword, confirm string) error {
	const op = "profile.change_password"

	if current == "" {
		return apperr.New(apperr.KindValidation, op, "please enter your current password")
	}
	if newPassword != confirm {
		return apperr.New(apperr.KindValidation, op, "new passwords do not match")
	}
	if err := validatePassword(op, newPassword); err != nil {
		return err
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return s.writeError(op, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return apperr.New(apperr.KindForbidden, op, "current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Wrap(apperr.KindUnknown, op, err)
	}
	if err := s.repo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return s.writeError(op, err)
	}
	s.log.Info("password changed", zap.String("user_id", userID))
	return nil
}

func (s *profileService) writeError(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.New(apperr.KindNotFound, op, "profile not found")
	}
	return apperr.Remote(apperr.KindPersistence, op, err)
}
