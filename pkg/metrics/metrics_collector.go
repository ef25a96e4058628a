package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 指标收集器
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 评价流指标
	feedRefreshTotal    *prometheus.CounterVec
	feedRefreshDuration prometheus.Histogram
	feedReviews         prometheus.Gauge
	mutationsTotal      *prometheus.CounterVec
	orphanObjectsTotal  *prometheus.CounterVec

	// 工作区
	workspacesActive prometheus.Gauge
}

// NewMetricsCollector 创建指标收集器，reg 为空时使用默认注册表
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &MetricsCollector{
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		feedRefreshTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_refresh_total",
				Help: "Total number of feed refreshes",
			},
			[]string{"status"},
		),

		feedRefreshDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "feed_refresh_duration_seconds",
				Help:    "Feed refresh duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),

		feedReviews: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "feed_reviews",
				Help: "Number of reviews in the last loaded snapshot",
			},
		),

		mutationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_mutations_total",
				Help: "Total number of feed mutations by operation and error kind",
			},
			[]string{"operation", "result"},
		),

		orphanObjectsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_orphan_objects_total",
				Help: "Uploaded objects left without a referencing row",
			},
			[]string{"status"},
		),

		workspacesActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "workspaces_active",
				Help: "Number of live per-session workspaces",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, getStatusCategory(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordFeedRefresh 记录一次评价流刷新
func (m *MetricsCollector) RecordFeedRefresh(duration time.Duration, reviews int, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.feedRefreshTotal.WithLabelValues(status).Inc()
	m.feedRefreshDuration.Observe(duration.Seconds())
	if success {
		m.feedReviews.Set(float64(reviews))
	}
}

// RecordMutation 记录写操作结果，result 为 "ok" 或错误类别
func (m *MetricsCollector) RecordMutation(operation, result string) {
	m.mutationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordOrphan 记录孤儿对象处理结果 (queued / deleted / dropped)
func (m *MetricsCollector) RecordOrphan(status string) {
	m.orphanObjectsTotal.WithLabelValues(status).Inc()
}

// SetWorkspaces 更新工作区数量
func (m *MetricsCollector) SetWorkspaces(n int) {
	m.workspacesActive.Set(float64(n))
}

// getStatusCategory 获取状态分类
func getStatusCategory(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return strconv.Itoa(status)
	}
}

var (
	globalCollector *MetricsCollector
	globalOnce      sync.Once
)

// GetGlobalCollector 获取全局指标收集器
func GetGlobalCollector() *MetricsCollector {
	globalOnce.Do(func() {
		globalCollector = NewMetricsCollector(prometheus.DefaultRegisterer)
	})
	return globalCollector
}
