package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-mcp/internal/metrics"
	"github.com/DeafMist/news-mcp/internal/redisstore"
)

func newRedisStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.NewWithClient(client), mr
}

func requestFrom(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/mcp-server", nil)
	req.RemoteAddr = ip + ":4000"
	return req
}

func TestRateLimiterRejectsRequestAfterMax(t *testing.T) {
	store, mr := newRedisStore(t)
	m := metrics.New()

	limiter := NewRateLimiter(store, 3, time.Minute, m, discard())
	now := time.Unix(1_700_000_010, 0)
	limiter.now = func() time.Time { return now }

	h := &countingHandler{}
	p := New(h, discard(), NewGuard(discard()), limiter)

	for i := range 3 {
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, requestFrom("8.8.8.8"))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, requestFrom("8.8.8.8"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, TooManyRequestsMessage, decodeDetail(t, rec))
	require.Equal(t, "30", rec.Header().Get("Retry-After"))
	require.Equal(t, 3, h.calls)
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP news_mcp_rate_limited_total Requests rejected by the rate limiter.
# TYPE news_mcp_rate_limited_total counter
news_mcp_rate_limited_total 1
`), "news_mcp_rate_limited_total"))

	key := limiter.WindowKey("8.8.8.8", now)
	require.Equal(t, "ratelimit:8.8.8.8:28333333", key)
	require.Equal(t, time.Minute, mr.TTL(key))

	// Other clients have their own counter.
	rec = httptest.NewRecorder()
	p.ServeHTTP(rec, requestFrom("1.1.1.1"))
	require.Equal(t, http.StatusOK, rec.Code)

	// The next window starts from zero.
	now = now.Add(time.Minute)
	rec = httptest.NewRecorder()
	p.ServeHTTP(rec, requestFrom("8.8.8.8"))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterCountsRejectedRequests(t *testing.T) {
	store, mr := newRedisStore(t)
	limiter := NewRateLimiter(store, 1, time.Minute, nil, discard())
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }
	p := New(&countingHandler{}, discard(), limiter)

	for range 4 {
		p.ServeHTTP(httptest.NewRecorder(), requestFrom("8.8.8.8"))
	}
	got, err := mr.Get(limiter.WindowKey("8.8.8.8", now))
	require.NoError(t, err)
	require.Equal(t, "4", got)
}

func TestRateLimiterStoreFailureIsGuarded(t *testing.T) {
	failing := counterFunc(func(context.Context, string, time.Duration) (int64, error) {
		return 0, errors.New("dial tcp redis:6379: connection refused")
	})
	sink := &recordingSink{}
	h := &countingHandler{}
	p := New(h, discard(), NewGuard(discard()), NewAudit(sink, discard()), NewRateLimiter(failing, 10, time.Minute, nil, discard()))

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, requestFrom("8.8.8.8"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "redis")
	require.Zero(t, h.calls)
	require.Equal(t, http.StatusInternalServerError, sink.last(t).Status)
}

func TestRateLimitedReplyIsAudited(t *testing.T) {
	store, _ := newRedisStore(t)
	sink := &recordingSink{}
	limiter := NewRateLimiter(store, 1, time.Minute, nil, discard())
	limiter.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	p := New(&countingHandler{}, discard(), NewGuard(discard()), NewAudit(sink, discard()), limiter)

	p.ServeHTTP(httptest.NewRecorder(), requestFrom("8.8.8.8"))
	p.ServeHTTP(httptest.NewRecorder(), requestFrom("8.8.8.8"))

	require.Len(t, sink.events, 2)
	require.Equal(t, http.StatusOK, sink.events[0].Status)
	require.Equal(t, http.StatusTooManyRequests, sink.events[1].Status)
}

type counterFunc func(ctx context.Context, key string, ttl time.Duration) (int64, error)

func (f counterFunc) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return f(ctx, key, ttl)
}
