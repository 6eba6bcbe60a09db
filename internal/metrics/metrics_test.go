package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-mcp/internal/metrics"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.ObserveRequest(200, time.Millisecond)
		m.ObserveQuery("search", nil, time.Millisecond)
		m.IncRetry()
		m.IncTool("search_news", errors.New("x"))
		m.IncRateLimited()
	})
	require.Nil(t, m.Registry())
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := metrics.New()
	m.ObserveRequest(429, 5*time.Millisecond)
	m.IncRateLimited()
	m.IncTool("search_news", nil)
	m.ObserveQuery("search", errors.New("boom"), time.Millisecond)

	count, err := testutil.GatherAndCount(m.Registry(), "news_mcp_rate_limited_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `news_mcp_http_requests_total{status="429"} 1`)
	require.Contains(t, string(body), `news_mcp_tool_calls_total{outcome="ok",tool="search_news"} 1`)
	require.Contains(t, string(body), `news_mcp_search_query_duration_seconds_count{operation="search",outcome="error"} 1`)
}
