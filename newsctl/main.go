package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/DeafMist/news-mcp/internal/config"
	"github.com/DeafMist/news-mcp/internal/elasticsearch"
	"github.com/DeafMist/news-mcp/internal/logger"
	"github.com/DeafMist/news-mcp/internal/news"
	"github.com/DeafMist/news-mcp/internal/retry"
)

func main() {
	log := logger.New("newsctl")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	root := newRootCmd(func(dryRun bool, out io.Writer) (*news.Service, error) {
		return openService(dryRun, out, log)
	})
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// openService connects to the configured cluster, or prints requests instead
// when dryRun is set.
func openService(dryRun bool, out io.Writer, log *slog.Logger) (*news.Service, error) {
	cfg, err := config.LoadCLI()
	if err != nil {
		return nil, err
	}

	if dryRun {
		return news.NewService(&printGateway{out: out, ceiling: cfg.MaxResults}, cfg.MaxResults, news.WithLogger(log)), nil
	}

	es, err := elasticsearch.New(elasticsearch.Options{
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
	}, log)
	if err != nil {
		return nil, err
	}
	return news.NewService(es, es.Ceiling(), news.WithLogger(log)), nil
}
