package workspace

import (
	"context"
	"sync"
	"testing"
	"time"

	"review_board/internal/domain/review/model"
	"review_board/internal/domain/review/reviewtest"
	"review_board/internal/domain/review/session"
	"review_board/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// activeGauge 从注册表中读取 workspaces_active
func activeGauge(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "workspaces_active" {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return 0
}

func newRegistry(t *testing.T) (*Registry, *clock, *prometheus.Registry) {
	t.Helper()
	store := reviewtest.NewStore()
	store.AddProfile("u-1", "umber")
	clk := &clock{now: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	reg := prometheus.NewRegistry()
	m := metrics.NewMetricsCollector(reg)

	r := NewRegistry(Config{
		Store:   store,
		Storage: reviewtest.NewUploader(),
		Sources: func(token string) session.Source {
			if token == "" {
				return reviewtest.NewSessionSource(nil, false)
			}
			return reviewtest.NewSessionSource(&model.Identity{ID: "u-1", Username: "umber"}, false)
		},
		Metrics: m,
		Timeout: time.Second,
		IdleTTL: 10 * time.Minute,
		Now:     clk.Now,
	})
	return r, clk, reg
}

func TestRegistry_Get(t *testing.T) {
	r, _, reg := newRegistry(t)

	a := r.Get("token-a")
	assert.Same(t, a, r.Get("token-a"))
	assert.NotSame(t, a, r.Get("token-b"))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, float64(2), activeGauge(t, reg))

	guest := r.Get("")
	assert.True(t, guest.Guest())
	assert.Same(t, r.Guest(), guest)
	assert.Equal(t, 2, r.Len(), "guest is not counted")
}

func TestRegistry_WorkspaceIsWired(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()
	ws := r.Get("token-a")

	_, err := ws.Controller.CreateReview(ctx, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, ws.Feed.Snapshot().Len())
	assert.Same(t, ws.Feed, ws.Controller.Feed())

	require.NoError(t, ws.Editor.OpenNew(ctx))

	guest := r.Guest()
	identity, err := guest.Session.CurrentIdentity(ctx)
	require.NoError(t, err)
	assert.Nil(t, identity)
}

func TestRegistry_SweepIdle(t *testing.T) {
	r, clk, reg := newRegistry(t)

	r.Get("old")
	clk.Advance(8 * time.Minute)
	r.Get("fresh")
	clk.Advance(3 * time.Minute)

	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, float64(1), activeGauge(t, reg))

	// 使用会刷新空闲时间
	clk.Advance(5 * time.Minute)
	r.Get("fresh")
	clk.Advance(9 * time.Minute)
	assert.Zero(t, r.Sweep())
}

func TestRegistry_Drop(t *testing.T) {
	r, _, _ := newRegistry(t)
	first := r.Get("token-a")
	r.Drop("token-a")
	r.Drop("")
	assert.Zero(t, r.Len())
	assert.NotSame(t, first, r.Get("token-a"))
}

func TestRegistry_Peek(t *testing.T) {
	r, _, _ := newRegistry(t)

	_, ok := r.Peek("token-a")
	assert.False(t, ok)
	assert.Zero(t, r.Len(), "peek does not create")

	a := r.Get("token-a")
	got, ok := r.Peek("token-a")
	require.True(t, ok)
	assert.Same(t, a, got)

	guest, ok := r.Peek("")
	assert.True(t, ok)
	assert.True(t, guest.Guest())
}

func TestRegistry_RunStopsWithContext(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
