// Package news normalizes tool arguments, runs them through the query builder
// and the search gateway, and shapes the results.
package news

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/DeafMist/news-mcp/internal/cache"
	"github.com/DeafMist/news-mcp/internal/elasticsearch"
	"github.com/DeafMist/news-mcp/internal/models"
	"github.com/DeafMist/news-mcp/internal/query"
	"github.com/DeafMist/news-mcp/internal/textutil"
)

// Result-count defaults applied when the caller passes a non-positive value.
const (
	DefaultSearchResults = 20
	DefaultTopicResults  = 15
)

// Gateway is the subset of the search gateway the service depends on.
type Gateway interface {
	Execute(ctx context.Context, node query.Node, opts elasticsearch.SearchOptions) (*elasticsearch.SearchResult, error)
	GetByID(ctx context.Context, id string) (models.NewsRecord, bool, error)
}

// SearchRequest is a keyword search.
type SearchRequest struct {
	Query      string
	Source     string
	MaxResults int
	DateFrom   string
	DateTo     string
}

// SecondaryRequest is a primary+secondary keyword search.
type SecondaryRequest struct {
	PrimaryQuery   string
	SecondaryQuery string
	Source         string
	MaxResults     int
	DateFrom       string
	DateTo         string
}

// TopicRequest is a topic monitoring search.
type TopicRequest struct {
	PrimaryQueries   []string
	SecondaryQueries []string
	Sources          []string
	SearchWord       string
	MaxResults       int
	DateFrom         string
	DateTo           string
}

// Service implements the news operations.
type Service struct {
	gw      Gateway
	ceiling int
	details *cache.Cache[models.NewsDetail]
	log     *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithDetailCache caches by-id lookups for ttl, holding at most size entries.
func WithDetailCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		if size > 0 {
			s.details = cache.New[models.NewsDetail](size, ttl)
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService builds a Service that never asks the gateway for more than ceiling hits.
func NewService(gw Gateway, ceiling int, opts ...Option) *Service {
	s := &Service{
		gw:      gw,
		ceiling: ceiling,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchNews runs a keyword search.
func (s *Service) SearchNews(ctx context.Context, req SearchRequest) ([]models.NewsSummary, error) {
	s.checkDates("search_news", req.DateFrom, req.DateTo)

	node := query.BuildKeyword(query.Keyword{
		Query:    req.Query,
		Source:   req.Source,
		DateFrom: req.DateFrom,
		DateTo:   req.DateTo,
	})

	res, err := s.gw.Execute(ctx, node, elasticsearch.SearchOptions{
		Operation: "search_news",
		Size:      s.limit(req.MaxResults, DefaultSearchResults),
		Fields:    elasticsearch.SummaryFields,
	})
	if err != nil {
		return nil, fmt.Errorf("search news: %w", err)
	}
	return summaries(res.Items), nil
}

// SearchNewsWithSecondaryFilter requires both keywords to match.
func (s *Service) SearchNewsWithSecondaryFilter(ctx context.Context, req SecondaryRequest) ([]models.NewsSummary, error) {
	s.checkDates("search_news_with_secondary_filter", req.DateFrom, req.DateTo)

	node := query.BuildSecondary(query.Secondary{
		Primary:   req.PrimaryQuery,
		Secondary: req.SecondaryQuery,
		Source:    req.Source,
		DateFrom:  req.DateFrom,
		DateTo:    req.DateTo,
	})

	res, err := s.gw.Execute(ctx, node, elasticsearch.SearchOptions{
		Operation: "search_news_with_secondary_filter",
		Size:      s.limit(req.MaxResults, DefaultSearchResults),
		Fields:    elasticsearch.SummaryFields,
	})
	if err != nil {
		return nil, fmt.Errorf("search news with secondary filter: %w", err)
	}
	return summaries(res.Items), nil
}

// ReadNews returns one document. A missing document yields an empty detail and no error.
func (s *Service) ReadNews(ctx context.Context, newsID string) (models.NewsDetail, error) {
	if s.details != nil {
		if detail, ok := s.details.Get(newsID); ok {
			return detail, nil
		}
	}

	rec, found, err := s.gw.GetByID(ctx, newsID)
	if err != nil {
		return models.NewsDetail{}, fmt.Errorf("read news: %w", err)
	}
	if !found {
		s.log.Debug("news not found", slog.String("news_id", newsID))
		return models.NewsDetail{}, nil
	}

	detail := rec.Detail()
	if s.details != nil {
		s.details.Put(newsID, detail)
	}
	return detail, nil
}

// SearchTopicNews runs the OR-of-AND topic search, newest first. Without
// primary labels nothing is queried.
func (s *Service) SearchTopicNews(ctx context.Context, req TopicRequest) (models.TopicResult, error) {
	empty := models.TopicResult{Data: []models.NewsSummary{}}

	labels := textutil.Terms(req.PrimaryQueries)
	if len(labels) == 0 {
		return empty, nil
	}
	s.checkDates("search_topic_news", req.DateFrom, req.DateTo)

	node := query.BuildTopic(query.Topic{
		Labels:     labels,
		Filters:    textutil.Terms(req.SecondaryQueries),
		Sources:    textutil.Terms(req.Sources),
		SearchWord: req.SearchWord,
		DateFrom:   req.DateFrom,
		DateTo:     req.DateTo,
	})
	if node.IsEmpty() {
		return empty, nil
	}

	res, err := s.gw.Execute(ctx, node, elasticsearch.SearchOptions{
		Operation: "search_topic_news",
		Size:      s.limit(req.MaxResults, DefaultTopicResults),
		Fields:    elasticsearch.SummaryFields,
		Sort:      query.ReleaseTimeDesc,
	})
	if err != nil {
		return models.TopicResult{}, fmt.Errorf("search topic news: %w", err)
	}

	s.log.Info("topic search",
		slog.Int64("total", res.Total),
		slog.Int("labels", len(labels)),
		slog.Int("branches", node.Len()),
	)

	return models.TopicResult{Total: res.Total, Data: summaries(res.Items)}, nil
}

// limit applies the default for non-positive requests and the ceiling always.
func (s *Service) limit(requested, fallback int) int {
	if requested <= 0 {
		requested = fallback
	}
	return min(requested, s.ceiling)
}

// checkDates only warns: malformed dates are handed to the engine unchanged.
func (s *Service) checkDates(op string, dates ...string) {
	for _, d := range dates {
		if d != "" && !textutil.IsISODate(d) {
			s.log.Warn("date is not YYYY-MM-DD, passing through",
				slog.String("operation", op),
				slog.String("date", d),
			)
		}
	}
}

func summaries(items []models.NewsRecord) []models.NewsSummary {
	out := make([]models.NewsSummary, 0, len(items))
	for _, item := range items {
		out = append(out, item.Summary())
	}
	return out
}
