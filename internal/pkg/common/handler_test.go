package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	run := func(h *HealthHandler) (int, HealthStatus) {
		r := gin.New()
		r.GET("/health", h.Health)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		var env struct {
			Data HealthStatus `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		return w.Code, env.Data
	}

	t.Run("all ok", func(t *testing.T) {
		h := NewHealthHandler(time.Second)
		h.Add("database", func(ctx context.Context) error { return nil })
		h.Add("redis", func(ctx context.Context) error { return nil })

		code, status := run(h)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", status.Status)
		assert.Equal(t, map[string]string{"database": "ok", "redis": "ok"}, status.Checks)
	})

	t.Run("one failing", func(t *testing.T) {
		h := NewHealthHandler(time.Second)
		h.Add("database", func(ctx context.Context) error { return nil })
		h.Add("redis", func(ctx context.Context) error { return errors.New("connection refused") })

		code, status := run(h)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "degraded", status.Status)
		assert.Equal(t, "connection refused", status.Checks["redis"])
	})

	t.Run("slow check times out", func(t *testing.T) {
		h := NewHealthHandler(10 * time.Millisecond)
		h.Add("storage", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

		code, status := run(h)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["storage"])
	})
}
