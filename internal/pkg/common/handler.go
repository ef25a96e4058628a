package handler

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"review_board/pkg/response"

	"github.com/gin-gonic/gin"
)

// Checker 依赖健康检查
type Checker func(ctx context.Context) error

// HealthHandler 并发检查各依赖
type HealthHandler struct {
	checks  map[string]Checker
	timeout time.Duration
}

func NewHealthHandler(timeout time.Duration) *HealthHandler {
	return &HealthHandler{checks: map[string]Checker{}, timeout: timeout}
}

// Add 注册检查项
func (h *HealthHandler) Add(name string, check Checker) {
	h.checks[name] = check
}

// HealthStatus 健康检查结果
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health 健康检查
// @Summary 健康检查
// @Tags Common
// @Produce json
// @Success 200 {object} response.Response{data=HealthStatus}
// @Failure 503 {object} response.Response{data=HealthStatus}
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	// 结果数组，按索引赋值保证顺序
	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(index int, check Checker) {
			defer wg.Done()
			if err := check(ctx); err != nil {
				results[index] = err.Error()
				return
			}
			results[index] = "ok"
		}(i, h.checks[name])
	}
	wg.Wait()

	status := HealthStatus{Status: "ok", Checks: make(map[string]string, len(names))}
	for i, name := range names {
		status.Checks[name] = results[i]
		if results[i] != "ok" {
			status.Status = "degraded"
		}
	}

	if status.Status != "ok" {
		c.JSON(http.StatusServiceUnavailable, response.Response{
			Code:    response.ErrServerInternal,
			Message: "some dependencies are unavailable",
			Data:    status,
		})
		return
	}
	response.Success(c, status)
}
