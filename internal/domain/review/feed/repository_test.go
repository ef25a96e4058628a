package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"review_board/internal/domain/review/model"
	"review_board/internal/domain/review/reviewtest"
	"review_board/internal/domain/review/session"
	"review_board/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRepo(store Store, viewer *model.Identity) *Repository {
	sm := session.NewManager(reviewtest.NewSessionSource(viewer, false), zap.NewNop(), time.Second)
	return NewRepository(store, sm, zap.NewNop(), time.Second)
}

func TestRefresh_EmptyStore(t *testing.T) {
	repo := newRepo(reviewtest.NewStore(), nil)

	assert.False(t, repo.Snapshot().Loaded())
	require.NoError(t, repo.Refresh(context.Background()))

	snap := repo.Snapshot()
	assert.True(t, snap.Loaded())
	assert.Equal(t, 0, snap.Len())
	assert.Empty(t, snap.Reviews())
}

func TestRefresh_OrderingAndTieBreak(t *testing.T) {
	store := reviewtest.NewStore()
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	store.SeedReview(model.Review{ID: 5, AuthorID: "u1", Content: "tie-5", CreatedAt: t0})
	store.SeedReview(model.Review{ID: 3, AuthorID: "u1", Content: "tie-3", CreatedAt: t0})
	store.SeedReview(model.Review{ID: 1, AuthorID: "u1", Content: "oldest", CreatedAt: t0.Add(-time.Hour)})
	store.SeedReview(model.Review{ID: 9, AuthorID: "u1", Content: "newest", CreatedAt: t0.Add(time.Hour)})

	store.SeedReply(model.Reply{ID: 21, ReviewID: 3, AuthorID: "u1", Content: "b", CreatedAt: t0.Add(time.Minute)})
	store.SeedReply(model.Reply{ID: 20, ReviewID: 3, AuthorID: "u1", Content: "a", CreatedAt: t0.Add(time.Minute)})
	store.SeedReply(model.Reply{ID: 19, ReviewID: 3, AuthorID: "u1", Content: "later", CreatedAt: t0.Add(time.Hour)})

	repo := newRepo(store, nil)

	// 多次刷新，map 遍历顺序不同也得到同样的顺序
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Refresh(context.Background()))

		reviews := repo.Snapshot().Reviews()
		ids := make([]int64, len(reviews))
		for j, r := range reviews {
			ids[j] = r.ID
		}
		assert.Equal(t, []int64{9, 3, 5, 1}, ids)

		replies := reviews[1].Replies
		require.Len(t, replies, 3)
		assert.Equal(t, []int64{20, 21, 19}, []int64{replies[0].ID, replies[1].ID, replies[2].ID})
	}
}

func TestRefresh_MissingAuthorPlaceholder(t *testing.T) {
	store := reviewtest.NewStore()
	store.AddProfile("u1", "alice")
	review := store.SeedReview(model.Review{AuthorID: "ghost", Content: "still visible"})
	store.SeedReply(model.Reply{ReviewID: review.ID, AuthorID: "u1", Content: "hi"})

	repo := newRepo(store, nil)
	require.NoError(t, repo.Refresh(context.Background()))

	entry, ok := repo.Snapshot().Review(review.ID)
	require.True(t, ok)
	assert.True(t, entry.Author.Unknown)
	assert.Equal(t, model.UnknownUsername, entry.Author.Username)
	assert.Equal(t, "ghost", entry.Author.ID)
	assert.Equal(t, "still visible", entry.Content)
	assert.Equal(t, "alice", entry.Replies[0].Author.Username)
}

func TestRefresh_ReactionCountsAndViewer(t *testing.T) {
	store := reviewtest.NewStore()
	review := store.SeedReview(model.Review{AuthorID: "u1", Content: "x"})
	ctx := context.Background()
	require.NoError(t, store.CreateReaction(ctx, &model.Reaction{ReviewID: review.ID, UserID: "u1", Kind: model.ReactionLike}))
	require.NoError(t, store.CreateReaction(ctx, &model.Reaction{ReviewID: review.ID, UserID: "u2", Kind: model.ReactionLike}))
	require.NoError(t, store.CreateReaction(ctx, &model.Reaction{ReviewID: review.ID, UserID: "u2", Kind: model.ReactionLove}))

	repo := newRepo(store, &model.Identity{ID: "u2"})
	require.NoError(t, repo.Refresh(ctx))

	entry, ok := repo.Snapshot().Review(review.ID)
	require.True(t, ok)
	assert.Equal(t, 2, entry.ReactionCount(model.ReactionLike))
	assert.Equal(t, 1, entry.ReactionCount(model.ReactionLove))
	assert.Equal(t, 0, entry.ReactionCount(model.ReactionInsightful))
	assert.True(t, entry.HasReacted(model.ReactionLike))
	assert.True(t, entry.HasReacted(model.ReactionLove))
	assert.Equal(t, "u2", repo.Snapshot().ViewerID())
}

func TestRefresh_FailurePolicy(t *testing.T) {
	store := reviewtest.NewStore()
	store.SeedReview(model.Review{AuthorID: "u1", Content: "kept"})
	repo := newRepo(store, nil)
	ctx := context.Background()

	t.Run("first load failure leaves empty snapshot", func(t *testing.T) {
		store.Fail("ListReviews", errors.New("connection refused"))
		err := repo.Refresh(ctx)

		assert.ErrorIs(t, err, apperr.ErrRepository)
		assert.False(t, repo.Snapshot().Loaded())
		assert.ErrorIs(t, repo.LastError(), apperr.ErrRepository)
	})

	t.Run("success clears error", func(t *testing.T) {
		store.Fail("ListReviews", nil)
		require.NoError(t, repo.Refresh(ctx))
		assert.NoError(t, repo.LastError())
		assert.Equal(t, 1, repo.Snapshot().Len())
	})

	t.Run("later failure retains stale snapshot", func(t *testing.T) {
		before := repo.Snapshot()
		store.Fail("ListReactions", errors.New("timeout"))

		err := repo.Refresh(ctx)
		assert.ErrorIs(t, err, apperr.ErrRepository)
		assert.Same(t, before, repo.Snapshot())
		assert.True(t, repo.Snapshot().Loaded())
		assert.Error(t, repo.LastError())
	})

	t.Run("deadline maps to timeout", func(t *testing.T) {
		store.Fail("ListReactions", context.DeadlineExceeded)
		assert.ErrorIs(t, repo.Refresh(ctx), apperr.ErrTimeout)
	})
}

func TestSnapshot_AccessorsReturnCopies(t *testing.T) {
	store := reviewtest.NewStore()
	review := store.SeedReview(model.Review{AuthorID: "u1", Content: "original"})
	store.SeedReply(model.Reply{ReviewID: review.ID, AuthorID: "u1", Content: "reply"})

	repo := newRepo(store, nil)
	require.NoError(t, repo.Refresh(context.Background()))

	reviews := repo.Snapshot().Reviews()
	reviews[0].Content = "tampered"
	reviews[0].Replies[0].Content = "tampered"
	reviews[0].Reactions[model.ReactionLike] = 99

	fresh, _ := repo.Snapshot().Review(review.ID)
	assert.Equal(t, "original", fresh.Content)
	assert.Equal(t, "reply", fresh.Replies[0].Content)
	assert.Equal(t, 0, fresh.ReactionCount(model.ReactionLike))
}

func TestRefresh_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	store := reviewtest.NewStore()
	repo := newRepo(store, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := repo.Snapshot()
				reviews := snap.Reviews()
				// 每条评价恰好有一条回复，部分构建的快照会破坏这个关系
				for _, r := range reviews {
					assert.Len(t, r.Replies, 1)
				}
				assert.Equal(t, snap.Len(), len(reviews))
			}
		}()
	}

	for i := 0; i < 50; i++ {
		r := store.SeedReview(model.Review{AuthorID: "u1", Content: "x"})
		store.SeedReply(model.Reply{ReviewID: r.ID, AuthorID: "u1", Content: "y"})
		require.NoError(t, repo.Refresh(ctx))
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 50, repo.Snapshot().Len())
}

func TestBuildSnapshot_StaleRefreshDoesNotOverwriteNewer(t *testing.T) {
	repo := newRepo(reviewtest.NewStore(), nil)

	newer := buildSnapshot(nil, nil, "", 10, time.Now())
	repo.current.Store(newer)
	repo.seq.Store(3)

	// seq 4 < 10，结果被丢弃
	require.NoError(t, repo.Refresh(context.Background()))
	assert.Same(t, newer, repo.Snapshot())
}

func TestRefresh_StaleOutcomeDoesNotOverwriteLastError(t *testing.T) {
	store := reviewtest.NewStore()
	ctx := context.Background()

	t.Run("older success keeps newer failure", func(t *testing.T) {
		repo := newRepo(store, nil)
		repo.current.Store(buildSnapshot(nil, nil, "", 8, time.Now()))
		newerErr := apperr.Remote(apperr.KindRepository, "feed.refresh", errors.New("down"))
		repo.setLastError(10, newerErr)
		repo.seq.Store(3)

		require.NoError(t, repo.Refresh(ctx))
		assert.Same(t, newerErr, repo.LastError())
	})

	t.Run("older failure keeps newer success", func(t *testing.T) {
		repo := newRepo(store, nil)
		repo.current.Store(buildSnapshot(nil, nil, "", 10, time.Now()))
		repo.setLastError(10, nil)
		repo.seq.Store(3)

		store.Fail("ListReviews", errors.New("connection refused"))
		defer store.Fail("ListReviews", nil)

		assert.ErrorIs(t, repo.Refresh(ctx), apperr.ErrRepository)
		assert.NoError(t, repo.LastError())
	})

	t.Run("newer refresh replaces error", func(t *testing.T) {
		repo := newRepo(store, nil)
		store.Fail("ListReviews", errors.New("connection refused"))
		require.Error(t, repo.Refresh(ctx))
		store.Fail("ListReviews", nil)

		require.NoError(t, repo.Refresh(ctx))
		assert.NoError(t, repo.LastError())
	})
}
