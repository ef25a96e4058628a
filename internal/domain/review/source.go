package review

import (
	"context"

	"review_board/internal/domain/review/model"
	"review_board/internal/domain/review/session"
	userservice "review_board/internal/domain/user/service"
)

// authSource 以某个 token 的身份访问账号服务
type authSource struct {
	auth  userservice.AuthService
	token string
}

func newAuthSource(auth userservice.AuthService, token string) session.Source {
	return &authSource{auth: auth, token: token}
}

func (s *authSource) CurrentSession(ctx context.Context) (*model.Identity, error) {
	if s.token == "" {
		return nil, nil
	}
	profile, err := s.auth.CurrentSession(ctx, s.token)
	if err != nil || profile == nil {
		return nil, err
	}
	return &model.Identity{
		ID:        profile.ID,
		Username:  profile.Username,
		AvatarURL: profile.Avatar(),
		IsAdmin:   profile.IsAdmin,
	}, nil
}

func (s *authSource) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return s.auth.IsAdmin(ctx, userID)
}

func (s *authSource) SignOut(ctx context.Context) error {
	if s.token == "" {
		return nil
	}
	return s.auth.SignOut(ctx, s.token)
}
