// Package feed keeps the in-memory review feed in sync with the store.
package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"review_board/internal/domain/review/model"
	"review_board/pkg/apperr"
	"review_board/pkg/metrics"

	"go.uber.org/zap"
)

// Store 读取评价流所需的远程能力
type Store interface {
	ListReviews(ctx context.Context) ([]model.Review, error)
	ListReactions(ctx context.Context) ([]model.Reaction, error)
}

// Viewer 提供当前观看者身份
type Viewer interface {
	CurrentIdentity(ctx context.Context) (*model.Identity, error)
}

// Repository 持有当前快照，刷新时整体替换
type Repository struct {
	store   Store
	viewer  Viewer
	log     *zap.Logger
	metrics *metrics.MetricsCollector
	timeout time.Duration
	now     func() time.Time

	current atomic.Pointer[Snapshot]
	seq     atomic.Uint64

	errMu   sync.RWMutex
	lastErr error
	errSeq  uint64
}

// Option 可选配置
type Option func(*Repository)

// WithMetrics 记录刷新指标
func WithMetrics(m *metrics.MetricsCollector) Option {
	return func(r *Repository) { r.metrics = m }
}

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func NewRepository(store Store, viewer Viewer, log *zap.Logger, timeout time.Duration, opts ...Option) *Repository {
	r := &Repository{
		store:   store,
		viewer:  viewer,
		log:     log,
		timeout: timeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.current.Store(emptySnapshot())
	return r
}

// Snapshot 当前快照，首次加载前为空快照，不会返回 nil
func (r *Repository) Snapshot() *Snapshot {
	return r.current.Load()
}

// LastError 最近一次刷新的错误，成功刷新后清空
func (r *Repository) LastError() error {
	r.errMu.RLock()
	defer r.errMu.RUnlock()
	return r.lastErr
}

// setLastError 只接受不早于已安装快照和上次结果的刷新
func (r *Repository) setLastError(seq uint64, err error) {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if seq < r.errSeq || seq < r.current.Load().seq {
		return
	}
	r.errSeq = seq
	r.lastErr = err
}

// Refresh 拉取完整评价图并原子替换快照；失败时快照保持不变
func (r *Repository) Refresh(ctx context.Context) error {
	seq := r.seq.Add(1)
	start := time.Now()

	viewerID := ""
	if r.viewer != nil {
		identity, err := r.viewer.CurrentIdentity(ctx)
		if err != nil {
			// 读取评价流不要求登录，按匿名处理
			r.log.Warn("resolve viewer failed, refreshing anonymously", zap.Error(err))
		} else if identity != nil {
			viewerID = identity.ID
		}
	}

	reviews, reactions, err := r.fetch(ctx)
	if err != nil {
		wrapped := apperr.Remote(apperr.KindRepository, "feed.refresh", err)
		r.setLastError(seq, wrapped)
		r.record(start, 0, false)
		r.log.Warn("feed refresh failed", zap.Error(err), zap.Bool("loaded", r.Snapshot().Loaded()))
		return wrapped
	}

	snap := buildSnapshot(reviews, reactions, viewerID, seq, r.now())
	for {
		cur := r.current.Load()
		if cur.seq > seq {
			// 更新的刷新已经完成
			break
		}
		if r.current.CompareAndSwap(cur, snap) {
			break
		}
	}
	r.setLastError(seq, nil)
	r.record(start, snap.Len(), true)
	return nil
}

// fetch 一次逻辑读取：先评价（含作者和回复），再反应
func (r *Repository) fetch(ctx context.Context) ([]model.Review, []model.Reaction, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	reviews, err := r.store.ListReviews(ctx)
	if err != nil {
		return nil, nil, err
	}
	reactions, err := r.store.ListReactions(ctx)
	if err != nil {
		return nil, nil, err
	}
	return reviews, reactions, nil
}

func (r *Repository) record(start time.Time, n int, ok bool) {
	if r.metrics != nil {
		r.metrics.RecordFeedRefresh(time.Since(start), n, ok)
	}
}
