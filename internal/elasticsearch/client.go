package elasticsearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"golang.org/x/time/rate"

	"github.com/DeafMist/news-mcp/internal/metrics"
	"github.com/DeafMist/news-mcp/internal/models"
	"github.com/DeafMist/news-mcp/internal/query"
	"github.com/DeafMist/news-mcp/internal/retry"
)

// Source fields projected per operation.
var (
	SummaryFields = []string{"news_id", "title", "source", "url", "release_time"}
	DetailFields  = []string{"news_id", "title", "source", "url", "release_time", "content"}
)

// Options configure the gateway.
type Options struct {
	Addr       string
	Index      string
	APIKey     string
	Insecure   bool
	MaxResults int
	MaxQPS     float64
	Retry      retry.Policy
	Metrics    *metrics.Metrics
	// Transport overrides the HTTP transport (tests point it at httptest servers).
	Transport http.RoundTripper
}

// Client wraps go-elasticsearch with the retry, throttling and mapping rules
// of the news index.
type Client struct {
	es      *elasticsearch.Client
	index   string
	ceiling int
	retry   retry.Policy
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     *slog.Logger
}

// SearchOptions describe how a query tree is executed.
type SearchOptions struct {
	// Operation labels metrics and logs.
	Operation string
	Size      int
	Fields    []string
	Sort      []query.Sort
}

// SearchResult bundles hits and the engine-reported total.
type SearchResult struct {
	Total int64
	Items []models.NewsRecord
}

// New instantiates the Elasticsearch client. The client's built-in retry is
// disabled; opts.Retry is the only retry policy applied.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	if opts.MaxResults <= 0 {
		return nil, fmt.Errorf("max results must be positive")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cfg := elasticsearch.Config{
		Addresses:    []string{opts.Addr},
		APIKey:       opts.APIKey,
		DisableRetry: true,
		Transport:    opts.Transport,
	}
	if cfg.Transport == nil && opts.Insecure {
		cfg.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in via ELASTICSEARCH_INSECURE
		}
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	c := &Client{
		es:      es,
		index:   opts.Index,
		ceiling: opts.MaxResults,
		retry:   opts.Retry,
		metrics: opts.Metrics,
		log:     logger,
	}
	if opts.MaxQPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.MaxQPS), int(math.Max(1, math.Ceil(opts.MaxQPS))))
	}

	userHook := c.retry.OnRetry
	c.retry.OnRetry = func(attempt int, wait time.Duration, err error) {
		c.metrics.IncRetry()
		c.log.Warn("elasticsearch call failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", wait),
		)
		if userHook != nil {
			userHook(attempt, wait, err)
		}
	}

	return c, nil
}

// Ceiling is the maximum number of hits a single call returns.
func (c *Client) Ceiling() int {
	return c.ceiling
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// Health asks the cluster for its health status.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

// Execute runs node against the index. The requested size is clamped to the
// ceiling here regardless of what callers already did.
func (c *Client) Execute(ctx context.Context, node query.Node, opts SearchOptions) (*SearchResult, error) {
	size := c.clamp(opts.Size)

	payload, err := json.Marshal(query.Request(node, size, opts.Fields, opts.Sort))
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	op := opts.Operation
	if op == "" {
		op = "search"
	}

	var parsed searchResponse
	start := time.Now()
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		parsed = searchResponse{}
		return c.search(ctx, payload, &parsed)
	}, isTransient)
	c.metrics.ObserveQuery(op, err, time.Since(start))
	if err != nil {
		return nil, err
	}

	hits := parsed.Hits.Hits
	if len(hits) > size {
		hits = hits[:size]
	}

	items := make([]models.NewsRecord, 0, len(hits))
	for _, hit := range hits {
		items = append(items, c.mapHit(hit.ID, hit.Source))
	}

	c.log.Debug("search executed",
		slog.String("operation", op),
		slog.Int("size", size),
		slog.Int("returned", len(items)),
		slog.Int64("total", parsed.Hits.Total.Value),
	)

	return &SearchResult{Total: parsed.Hits.Total.Value, Items: items}, nil
}

// GetByID returns the document whose news_id equals id. A miss is reported
// through the boolean, not as an error.
func (c *Client) GetByID(ctx context.Context, id string) (models.NewsRecord, bool, error) {
	res, err := c.Execute(ctx, query.ByID(id), SearchOptions{
		Operation: "get_by_id",
		Size:      1,
		Fields:    DetailFields,
	})
	if err != nil {
		return models.NewsRecord{}, false, fmt.Errorf("lookup news %q: %w", id, err)
	}
	if len(res.Items) == 0 {
		return models.NewsRecord{}, false, nil
	}
	return res.Items[0], true, nil
}

func (c *Client) clamp(size int) int {
	if size < 0 {
		return 0
	}
	if size > c.ceiling {
		return c.ceiling
	}
	return size
}

func (c *Client) search(ctx context.Context, payload []byte, out *searchResponse) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("search throttle: %w", err)
		}
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return &TransportError{Op: "search", Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		if transientStatus(res.StatusCode) {
			return &TransportError{Op: "search", Status: res.StatusCode, Err: errors.New(strings.TrimSpace(string(data)))}
		}
		return newQueryError(res.StatusCode, data)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}
