package reviewtest

import (
	"context"
	"sync"

	"review_board/internal/domain/review/model"
)

// SessionSource 固定身份的会话来源
type SessionSource struct {
	mu       sync.Mutex
	identity *model.Identity
	admin    bool

	SignOutErr   error
	SignOutCalls int
}

// NewSessionSource identity 为 nil 表示未登录
func NewSessionSource(identity *model.Identity, admin bool) *SessionSource {
	return &SessionSource{identity: identity, admin: admin}
}

func (s *SessionSource) CurrentSession(ctx context.Context) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil, nil
	}
	cp := *s.identity
	cp.IsAdmin = s.admin
	return &cp, nil
}

func (s *SessionSource) IsAdmin(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admin, nil
}

func (s *SessionSource) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SignOutCalls++
	s.identity = nil
	return s.SignOutErr
}
