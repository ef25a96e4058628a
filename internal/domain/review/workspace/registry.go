// Package workspace hosts one feed core per signed-in token: a session manager, a feed
// repository, a mutation controller and an editor that belong together. Requests without a
// token share a read-only guest workspace.
package workspace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"review_board/internal/domain/review/editor"
	"review_board/internal/domain/review/feed"
	"review_board/internal/domain/review/repository"
	"review_board/internal/domain/review/service"
	"review_board/internal/domain/review/session"
	"review_board/internal/pkg/uploader"
	"review_board/pkg/metrics"

	"go.uber.org/zap"
)

// SourceFactory 为 token 创建会话来源；token 为空表示访客
type SourceFactory func(token string) session.Source

// Workspace 一个登录会话的评价流核心
type Workspace struct {
	key        string
	Session    *session.Manager
	Feed       *feed.Repository
	Controller *service.Controller
	Editor     *editor.Session

	mu       sync.Mutex
	lastUsed time.Time
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	w.lastUsed = now
	w.mu.Unlock()
}

func (w *Workspace) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastUsed
}

// Guest 是否为访客工作区
func (w *Workspace) Guest() bool {
	return w.key == ""
}

// Config 创建工作区所需的依赖
type Config struct {
	Store   repository.ReviewRepository
	Storage uploader.Uploader
	Orphans service.OrphanSink
	Sources SourceFactory
	Log     *zap.Logger
	Metrics *metrics.MetricsCollector
	// Timeout 远程调用超时
	Timeout time.Duration
	// IdleTTL 超过该时间未使用的工作区被回收
	IdleTTL time.Duration
	Now     func() time.Time
}

// Registry 按 token 管理工作区
type Registry struct {
	cfg   Config
	guest *Workspace

	mu    sync.Mutex
	items map[string]*Workspace
}

func NewRegistry(cfg Config) *Registry {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	r := &Registry{cfg: cfg, items: map[string]*Workspace{}}
	r.guest = r.build("", cfg.Sources(""))
	return r
}

func (r *Registry) build(key string, source session.Source) *Workspace {
	log := r.cfg.Log
	if key != "" {
		log = log.With(zap.String("workspace", key[:12]))
	}
	sm := session.NewManager(source, log, r.cfg.Timeout)

	opts := []feed.Option{feed.WithClock(r.cfg.Now)}
	if r.cfg.Metrics != nil {
		opts = append(opts, feed.WithMetrics(r.cfg.Metrics))
	}
	fr := feed.NewRepository(r.cfg.Store, sm, log, r.cfg.Timeout, opts...)

	c := service.NewController(service.Deps{
		Store:   r.cfg.Store,
		Feed:    fr,
		Session: sm,
		Storage: r.cfg.Storage,
		Orphans: r.cfg.Orphans,
		Log:     log,
		Metrics: r.cfg.Metrics,
		Timeout: r.cfg.Timeout,
		Now:     r.cfg.Now,
	})

	return &Workspace{
		key:        key,
		Session:    sm,
		Feed:       fr,
		Controller: c,
		Editor:     editor.New(c, fr, sm),
		lastUsed:   r.cfg.Now(),
	}
}

func keyOf(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Get 返回 token 对应的工作区，不存在时创建。空 token 返回访客工作区
func (r *Registry) Get(token string) *Workspace {
	if token == "" {
		return r.guest
	}
	key := keyOf(token)
	now := r.cfg.Now()

	r.mu.Lock()
	ws, ok := r.items[key]
	if !ok {
		ws = r.build(key, r.cfg.Sources(token))
		r.items[key] = ws
	}
	n := len(r.items)
	r.mu.Unlock()

	ws.touch(now)
	if !ok {
		r.report(n)
	}
	return ws
}

// Peek 返回已存在的工作区，不创建
func (r *Registry) Peek(token string) (*Workspace, bool) {
	if token == "" {
		return r.guest, true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.items[keyOf(token)]
	return ws, ok
}

// Guest 访客工作区
func (r *Registry) Guest() *Workspace {
	return r.guest
}

// Drop 登出后移除工作区
func (r *Registry) Drop(token string) {
	if token == "" {
		return
	}
	r.mu.Lock()
	delete(r.items, keyOf(token))
	n := len(r.items)
	r.mu.Unlock()
	r.report(n)
}

// Len 登录用户的工作区数量
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Sweep 回收空闲的工作区，返回回收数量
func (r *Registry) Sweep() int {
	cutoff := r.cfg.Now().Add(-r.cfg.IdleTTL)

	r.mu.Lock()
	removed := 0
	for key, ws := range r.items {
		if ws.idleSince().Before(cutoff) {
			delete(r.items, key)
			removed++
		}
	}
	n := len(r.items)
	r.mu.Unlock()

	if removed > 0 {
		r.cfg.Log.Debug("idle workspaces removed", zap.Int("removed", removed), zap.Int("active", n))
		r.report(n)
	}
	return removed
}

// Run 周期性回收，直到 ctx 结束
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) report(n int) {
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.SetWorkspaces(n)
	}
}
