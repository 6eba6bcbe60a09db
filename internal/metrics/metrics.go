// Package metrics owns the Prometheus collectors exposed on /metrics.
// Every method is safe on a nil *Metrics so collaborators can run without it.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "news_mcp"

// Metrics bundles the collectors registered on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	queryDuration   *prometheus.HistogramVec
	queryRetries    prometheus.Counter
	toolCalls       *prometheus.CounterVec
	rateLimited     prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "MCP HTTP requests by response status.",
		}, []string{"status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "MCP HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_query_duration_seconds",
			Help:      "Elasticsearch query latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		queryRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_query_retries_total",
			Help:      "Elasticsearch calls retried after a transport failure.",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "MCP tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.queryDuration,
		m.queryRetries,
		m.toolCalls,
		m.rateLimited,
	)
	return m
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRequest(status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requests.WithLabelValues(code).Inc()
	m.requestDuration.WithLabelValues(code).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveQuery(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(operation, outcome(err)).Observe(elapsed.Seconds())
}

func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.queryRetries.Inc()
}

func (m *Metrics) IncTool(tool string, err error) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome(err)).Inc()
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
