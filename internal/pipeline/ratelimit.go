package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/DeafMist/news-mcp/internal/metrics"
)

// TooManyRequestsMessage is the body detail of a rate-limited reply.
const TooManyRequestsMessage = "Too many requests, please retry later"

// Counter increments a key that expires ttl after its first increment.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RateLimiter allows at most max requests per client IP in each fixed window.
type RateLimiter struct {
	counter Counter
	max     int64
	window  time.Duration
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

// NewRateLimiter creates the limiter. window is rounded down to whole seconds.
func NewRateLimiter(counter Counter, maxRequests int, window time.Duration, m *metrics.Metrics, log *slog.Logger) *RateLimiter {
	if window < time.Second {
		window = time.Second
	}
	return &RateLimiter{
		counter: counter,
		max:     int64(maxRequests),
		window:  window.Truncate(time.Second),
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

func (l *RateLimiter) Name() string { return "rate_limiter" }

// WindowKey is the counter key of ip at t.
func (l *RateLimiter) WindowKey(ip string, t time.Time) string {
	secs := int64(l.window / time.Second)
	return fmt.Sprintf("ratelimit:%s:%d", ip, t.Unix()/secs)
}

func (l *RateLimiter) Enter(_ http.ResponseWriter, r *http.Request, rc *RequestContext) (*Reply, error) {
	now := l.now()
	key := l.WindowKey(rc.ClientIP, now)

	count, err := l.counter.Incr(r.Context(), key, l.window)
	if err != nil {
		return nil, fmt.Errorf("count request: %w", err)
	}
	rc.WindowKey = key

	if count <= l.max {
		return nil, nil
	}

	l.metrics.IncRateLimited()
	l.log.Info("rate limit exceeded",
		slog.String("client_ip", rc.ClientIP),
		slog.String("key", key),
		slog.Int64("count", count),
	)

	secs := int64(l.window / time.Second)
	retryAfter := secs - now.Unix()%secs
	reply := Detail(http.StatusTooManyRequests, TooManyRequestsMessage)
	reply.Headers = map[string]string{"Retry-After": strconv.FormatInt(retryAfter, 10)}
	return reply, nil
}
