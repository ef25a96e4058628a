package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"review_board/internal/domain/admin/handler"
	"review_board/internal/domain/admin/service"
	"review_board/internal/domain/review/model"
	"review_board/internal/domain/review/reviewtest"
	"review_board/internal/domain/review/session"
	"review_board/internal/domain/review/workspace"
	"review_board/internal/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	author = &model.Identity{ID: "u-1", Username: "umber"}
	root   = &model.Identity{ID: "a-1", Username: "root"}
)

type resolver struct{}

func (resolver) Resolve(ctx context.Context, token string) (*middleware.Principal, error) {
	switch token {
	case "tok-admin":
		return &middleware.Principal{UserID: root.ID, Username: root.Username, IsAdmin: true}, nil
	case "tok-u":
		return &middleware.Principal{UserID: author.ID, Username: author.Username}, nil
	}
	return nil, nil
}

type userCount int64

func (n userCount) Count(ctx context.Context) (int64, error) { return int64(n), nil }

func newRouter(t *testing.T) (*gin.Engine, *reviewtest.Store) {
	t.Helper()
	store := reviewtest.NewStore()
	store.AddProfile(author.ID, author.Username)
	store.AddProfile(root.ID, root.Username)

	spaces := workspace.NewRegistry(workspace.Config{
		Store:   store,
		Storage: reviewtest.NewUploader(),
		Sources: func(token string) session.Source {
			if token == "tok-admin" {
				return reviewtest.NewSessionSource(root, true)
			}
			return reviewtest.NewSessionSource(nil, false)
		},
		Log:     zap.NewNop(),
		Timeout: time.Second,
		IdleTTL: time.Hour,
		Now:     time.Now,
	})

	r := gin.New()
	setupRoutes(r, handler.NewAdminHandler(service.NewStatsService(store, userCount(2), time.Second), spaces), resolver{})
	return r, store
}

func request(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	buf, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminRoutes_Gate(t *testing.T) {
	r, _ := newRouter(t)
	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/admin/stats", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, request(r, http.MethodGet, "/admin/stats", "tok-u", nil).Code)
}

func TestAdminRoutes_Stats(t *testing.T) {
	r, store := newRouter(t)
	rv := store.SeedReview(model.Review{AuthorID: author.ID, Content: "Great service"})
	store.SeedReply(model.Reply{ReviewID: rv.ID, AuthorID: root.ID, Content: "Thanks!"})

	w := request(r, http.MethodGet, "/admin/stats", "tok-admin", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var env struct {
		Data service.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, service.Stats{Reviews: 1, Replies: 1, Users: 2}, env.Data)
}

func TestAdminRoutes_Moderation(t *testing.T) {
	r, store := newRouter(t)
	rv := store.SeedReview(model.Review{AuthorID: author.ID, Content: "Great service"})
	rp := store.SeedReply(model.Reply{ReviewID: rv.ID, AuthorID: author.ID, Content: "bump"})
	id := strconv.FormatInt(rv.ID, 10)

	w := request(r, http.MethodPost, "/admin/reviews/"+id+"/replies", "tok-admin", handler.ReplyInput{Content: "Thank you for the feedback"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, store.ReplyCount())

	w = request(r, http.MethodDelete, "/admin/replies/"+strconv.FormatInt(rp.ID, 10), "tok-admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, store.ReplyCount())

	w = request(r, http.MethodDelete, "/admin/reviews/"+id, "tok-admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, store.ReviewCount())
	assert.Zero(t, store.ReplyCount(), "replies cascade with their review")

	w = request(r, http.MethodDelete, "/admin/reviews/nope", "tok-admin", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
