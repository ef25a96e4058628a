// Package session tracks the signed-in identity of one workspace.
package session

import (
	"context"
	"sync"
	"time"

	"review_board/internal/domain/review/model"
	"review_board/pkg/apperr"

	"go.uber.org/zap"
)

// Source 远程会话能力
type Source interface {
	// CurrentSession 返回当前身份；没有会话时返回 nil, nil
	CurrentSession(ctx context.Context) (*model.Identity, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
	SignOut(ctx context.Context) error
}

type call struct {
	done     chan struct{}
	identity *model.Identity
	err      error
}

// Manager 会话管理器。身份在第一次需要时解析并缓存，并发调用共享同一次解析
type Manager struct {
	source  Source
	log     *zap.Logger
	timeout time.Duration

	mu       sync.Mutex
	resolved bool
	identity *model.Identity
	inflight *call

	adminKnown bool
	admin      bool
}

func NewManager(source Source, log *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{source: source, log: log, timeout: timeout}
}

func (m *Manager) remoteCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

// CurrentIdentity 返回当前身份的副本，nil 表示未登录
func (m *Manager) CurrentIdentity(ctx context.Context) (*model.Identity, error) {
	m.mu.Lock()
	if m.resolved {
		id := copyIdentity(m.identity)
		m.mu.Unlock()
		return id, nil
	}

	c := m.inflight
	if c == nil {
		c = &call{done: make(chan struct{})}
		m.inflight = c
		m.mu.Unlock()
		m.resolve(ctx, c)
	} else {
		m.mu.Unlock()
	}

	select {
	case <-ctx.Done():
		return nil, apperr.Remote(apperr.KindRepository, "session.current", ctx.Err())
	case <-c.done:
	}
	if c.err != nil {
		return nil, c.err
	}
	return copyIdentity(c.identity), nil
}

func (m *Manager) resolve(ctx context.Context, c *call) {
	rctx, cancel := m.remoteCtx(ctx)
	identity, err := m.source.CurrentSession(rctx)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		// 失败不缓存，下次调用重新解析
		c.err = apperr.Remote(apperr.KindRepository, "session.current", err)
	} else {
		c.identity = identity
		m.identity = identity
		m.resolved = true
	}
	m.inflight = nil
	close(c.done)
}

// Cached 返回已缓存的身份，不触发远程调用
func (m *Manager) Cached() *model.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyIdentity(m.identity)
}

// IsOwner 实体作者是否为当前身份；身份尚未解析时返回 false
func (m *Manager) IsOwner(entity model.Owned) bool {
	if entity == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity != nil && entity.OwnerID() == m.identity.ID
}

// IsAdmin 管理员标记首次访问时从资料表获取，之后在会话期内缓存
func (m *Manager) IsAdmin(ctx context.Context) (bool, error) {
	identity, err := m.CurrentIdentity(ctx)
	if err != nil || identity == nil {
		return false, err
	}

	m.mu.Lock()
	if m.adminKnown {
		admin := m.admin
		m.mu.Unlock()
		return admin, nil
	}
	m.mu.Unlock()

	rctx, cancel := m.remoteCtx(ctx)
	defer cancel()
	admin, err := m.source.IsAdmin(rctx, identity.ID)
	if err != nil {
		return false, apperr.Remote(apperr.KindRepository, "session.is_admin", err)
	}

	m.mu.Lock()
	// 期间可能已经登出
	if m.identity != nil && m.identity.ID == identity.ID {
		m.adminKnown = true
		m.admin = admin
	}
	m.mu.Unlock()
	return admin, nil
}

// SignOut 清空本地身份；远程失败只记录日志，结果总是未登录
func (m *Manager) SignOut(ctx context.Context) {
	rctx, cancel := m.remoteCtx(ctx)
	defer cancel()
	if err := m.source.SignOut(rctx); err != nil {
		m.log.Warn("remote sign out failed", zap.Error(err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = nil
	m.resolved = true
	m.adminKnown = false
	m.admin = false
}

// Invalidate 丢弃缓存，下次访问重新解析（例如资料修改后）
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = nil
	m.resolved = false
	m.adminKnown = false
	m.admin = false
}

func copyIdentity(id *model.Identity) *model.Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}
