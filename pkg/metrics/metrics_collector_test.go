package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCollector(t *testing.T) {
	m := NewMetricsCollector(prometheus.NewRegistry())

	m.RecordHTTPRequest("GET", "/api/feed", 200, 10*time.Millisecond)
	m.RecordHTTPRequest("GET", "/api/feed", 204, 10*time.Millisecond)
	m.RecordHTTPRequest("POST", "/api/reviews", 409, time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/api/feed", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("POST", "/api/reviews", "4xx")))

	m.RecordFeedRefresh(time.Millisecond, 3, true)
	m.RecordFeedRefresh(time.Millisecond, 0, false)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.feedReviews))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feedRefreshTotal.WithLabelValues("error")))

	m.RecordMutation("create_review", "ok")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutationsTotal.WithLabelValues("create_review", "ok")))

	m.RecordOrphan("queued")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orphanObjectsTotal.WithLabelValues("queued")))

	m.SetWorkspaces(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.workspacesActive))
}

func TestGetStatusCategory(t *testing.T) {
	assert.Equal(t, "3xx", getStatusCategory(302))
	assert.Equal(t, "5xx", getStatusCategory(504))
	assert.Equal(t, "0", getStatusCategory(0))
}
