package pipeline

import (
	"net/http"
	"time"

	"github.com/DeafMist/news-mcp/internal/metrics"
)

// Metrics records request count and latency by final status.
type Metrics struct {
	m *metrics.Metrics
}

// NewMetrics creates the metrics stage.
func NewMetrics(m *metrics.Metrics) *Metrics {
	return &Metrics{m: m}
}

func (s *Metrics) Name() string { return "metrics" }

func (s *Metrics) Enter(http.ResponseWriter, *http.Request, *RequestContext) (*Reply, error) {
	return nil, nil
}

func (s *Metrics) Leave(_ http.ResponseWriter, _ *http.Request, rc *RequestContext) {
	s.m.ObserveRequest(rc.Status(), time.Since(rc.Start))
}
