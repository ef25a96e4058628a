package service

import (
	"context"

	"review_board/internal/pkg/middleware"
)

// PrincipalResolver 把 AuthService 适配为中间件使用的 SessionResolver
type PrincipalResolver struct {
	auth AuthService
}

func NewPrincipalResolver(auth AuthService) *PrincipalResolver {
	return &PrincipalResolver{auth: auth}
}

func (r *PrincipalResolver) Resolve(ctx context.Context, token string) (*middleware.Principal, error) {
	profile, err := r.auth.CurrentSession(ctx, token)
	if err != nil || profile == nil {
		return nil, err
	}
	return &middleware.Principal{
		UserID:   profile.ID,
		Username: profile.Username,
		IsAdmin:  profile.IsAdmin,
	}, nil
}
