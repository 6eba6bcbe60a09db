package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/news-mcp/internal/audit"
	"github.com/DeafMist/news-mcp/internal/config"
	"github.com/DeafMist/news-mcp/internal/elasticsearch"
	"github.com/DeafMist/news-mcp/internal/logger"
	"github.com/DeafMist/news-mcp/internal/metrics"
	"github.com/DeafMist/news-mcp/internal/news"
	"github.com/DeafMist/news-mcp/internal/pipeline"
	"github.com/DeafMist/news-mcp/internal/redisstore"
	"github.com/DeafMist/news-mcp/internal/retry"
	"github.com/DeafMist/news-mcp/internal/tools"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadServer()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	m := metrics.New()

	esClient, err := elasticsearch.New(elasticsearch.Options{
		Addr:       cfg.ElasticsearchAddr,
		Index:      cfg.ElasticsearchIndex,
		APIKey:     cfg.ElasticsearchAPIKey,
		Insecure:   cfg.ElasticsearchInsecure,
		MaxResults: cfg.MaxResults,
		MaxQPS:     cfg.ElasticsearchMaxQPS,
		Retry: retry.Policy{
			Attempts: cfg.RetryAttempts,
			Base:     cfg.RetryBase,
			Cap:      cfg.RetryCap,
		},
		Metrics: m,
	}, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	if err := waitForElasticsearch(ctx, esClient, log); err != nil {
		log.Error("elasticsearch unreachable", slog.Any("err", err))
		os.Exit(1)
	}

	store, err := redisstore.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("init redis", slog.Any("err", err))
		os.Exit(1)
	}
	defer store.Close()

	sinks := audit.Multi{audit.NewLogSink(log.With("component", "audit"))}
	if len(cfg.AuditBrokers) > 0 {
		sinks = append(sinks, audit.NewKafkaSink(cfg.AuditBrokers, cfg.AuditTopic, log))
		log.Info("audit events published to kafka", slog.String("topic", cfg.AuditTopic))
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Error("close audit sinks", slog.Any("err", err))
		}
	}()

	svc := news.NewService(esClient, esClient.Ceiling(),
		news.WithDetailCache(cfg.DetailCacheSize, cfg.DetailCacheTTL),
		news.WithLogger(log),
	)

	mcpServer, err := tools.NewServer(svc, m, log)
	if err != nil {
		log.Error("init mcp server", slog.Any("err", err))
		os.Exit(1)
	}

	stages, err := buildStages(cfg, store, sinks, m, log)
	if err != nil {
		log.Error("init pipeline", slog.Any("err", err))
		os.Exit(1)
	}

	srv := &server{log: log, es: esClient, redis: store, metrics: m}
	handler := srv.routes(cfg.MountPath, pipeline.New(tools.Handler(mcpServer), log, stages...))

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		log.Info("mcp server starting",
			slog.String("addr", cfg.BindAddr),
			slog.String("mount", cfg.MountPath),
			slog.Int("stages", len(stages)),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

// buildStages assembles the request pipeline, outermost first.
func buildStages(cfg *config.Server, store *redisstore.Store, sink audit.Sink, m *metrics.Metrics, log *slog.Logger) ([]pipeline.Stage, error) {
	auth, err := pipeline.NewAuthenticator(cfg.APIKey, cfg.AllowedIPs, log)
	if err != nil {
		return nil, err
	}

	stages := []pipeline.Stage{
		pipeline.NewGuard(log),
		pipeline.NewMetrics(m),
		pipeline.NewAudit(sink, log),
		pipeline.NewRateLimiter(store, cfg.RateLimitMax, cfg.RateLimitWindow, m, log),
	}
	if cfg.SessionEnabled {
		stages = append(stages, pipeline.NewSession(store, cfg.SessionSecret, cfg.SessionCookie, cfg.SessionMaxAge, log))
	}
	return append(stages, auth), nil
}

// waitForElasticsearch pings the cluster until it answers, backing off between attempts.
func waitForElasticsearch(ctx context.Context, es *elasticsearch.Client, log *slog.Logger) error {
	policy := retry.Policy{
		Attempts: 10,
		Base:     time.Second,
		Cap:      10 * time.Second,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			log.Warn("elasticsearch ping failed, retrying",
				slog.Any("err", err),
				slog.Int("attempt", attempt),
				slog.Duration("retry_in", wait),
			)
		},
	}
	return policy.Do(ctx, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return es.Ping(pingCtx)
	}, func(err error) bool {
		return !errors.Is(err, context.Canceled)
	})
}
