package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/news-mcp/internal/metrics"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type server struct {
	log     *slog.Logger
	es      pinger
	redis   pinger
	metrics *metrics.Metrics
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) routes(mountPath string, mcpHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)

	r.Get("/healthcheck", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	mountPath = strings.TrimRight(mountPath, "/")
	r.Handle(mountPath, mcpHandler)
	r.Handle(mountPath+"/*", mcpHandler)
	return r
}

// handleHealth answers liveness probes. With ?deep=1 it also pings the
// search cluster and Redis.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]pinger{"elasticsearch": s.es, "redis": s.redis}
	for name, dep := range checks {
		if dep == nil {
			continue
		}
		if err := dep.Ping(ctx); err != nil {
			s.log.Warn("health check failed", slog.String("dependency", name), slog.Any("err", err))
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: name + " unavailable"})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
