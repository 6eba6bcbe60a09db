// Package tools exposes the news operations as MCP tools.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeafMist/news-mcp/internal/elasticsearch"
	"github.com/DeafMist/news-mcp/internal/metrics"
	"github.com/DeafMist/news-mcp/internal/models"
	"github.com/DeafMist/news-mcp/internal/news"
	"github.com/DeafMist/news-mcp/internal/pipeline"
)

// Server identity advertised to MCP clients.
const (
	ServerName    = "NewsSearchServer"
	ServerVersion = "v1.0.0"
)

// Tool names.
const (
	ToolSearchNews      = "search_news"
	ToolSecondaryFilter = "search_news_with_secondary_filter"
	ToolReadNews        = "read_single_news"
	ToolTopicNews       = "search_topic_news"
)

const instructions = `This server searches a news archive.
Call search_news or search_news_with_secondary_filter to find news for research,
search_topic_news to monitor several topics at once,
and read_single_news to get the full content of one item by its news_id.`

// Error texts returned to clients. Details stay in the logs.
const (
	msgUnavailable = "news search is temporarily unavailable, please retry later"
	msgFailed      = "news search failed"
)

// NewsService is the behaviour the tools delegate to.
type NewsService interface {
	SearchNews(ctx context.Context, req news.SearchRequest) ([]models.NewsSummary, error)
	SearchNewsWithSecondaryFilter(ctx context.Context, req news.SecondaryRequest) ([]models.NewsSummary, error)
	ReadNews(ctx context.Context, newsID string) (models.NewsDetail, error)
	SearchTopicNews(ctx context.Context, req news.TopicRequest) (models.TopicResult, error)
}

type handlers struct {
	svc     NewsService
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewServer registers the news tools and prompt on a new MCP server.
func NewServer(svc NewsService, m *metrics.Metrics, log *slog.Logger) (*mcp.Server, error) {
	topic, err := topicSchema()
	if err != nil {
		return nil, err
	}

	h := &handlers{svc: svc, metrics: m, log: log}
	server := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: ServerVersion}, &mcp.ServerOptions{
		Instructions: instructions,
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolSearchNews,
		Description: "Search news by keywords. Results can be limited to a release date range.",
	}, h.searchNews)

	mcp.AddTool(server, &mcp.Tool{
		Name: ToolSecondaryFilter,
		Description: "Search news matching a primary keyword and filter them by a secondary keyword. " +
			"Only news matching both are returned. Results can be limited to a release date range.",
	}, h.secondaryFilter)

	mcp.AddTool(server, &mcp.Tool{
		Name: ToolReadNews,
		Description: "Get the full content of one news item by its news_id, " +
			"as returned by search_news or search_news_with_secondary_filter.",
	}, h.readNews)

	mcp.AddTool(server, &mcp.Tool{
		Name: ToolTopicNews,
		Description: "Search several topics at once, newest first. Each primary label is combined with AND " +
			"with every filter word and source, and all combinations are joined with OR: " +
			"<label1>&<filter>|<label2>&<filter>|... search_word and the date range apply to every combination.",
		InputSchema: topic,
	}, h.topicNews)

	server.AddPrompt(&mcp.Prompt{
		Name:        "search_news_prompt",
		Description: "Starting point for a news research session.",
	}, func(context.Context, *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return &mcp.GetPromptResult{
			Description: "News research",
			Messages: []*mcp.PromptMessage{{
				Role:    "user",
				Content: &mcp.TextContent{Text: "Use search_news to find relevant news, then read_single_news for the items worth reading in full."},
			}},
		}, nil
	})

	return server, nil
}

// Handler serves server over streamable HTTP, one self-contained exchange per request.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{
		Stateless:    true,
		JSONResponse: true,
	})
}

func (h *handlers) searchNews(ctx context.Context, _ *mcp.CallToolRequest, args searchNewsArgs) (*mcp.CallToolResult, any, error) {
	h.log.Info("call tool", slog.String("tool", ToolSearchNews), slog.String("query", args.Query))

	items, err := h.svc.SearchNews(ctx, news.SearchRequest{
		Query:      args.Query,
		Source:     args.Source,
		MaxResults: args.MaxResults,
		DateFrom:   args.DateFrom,
		DateTo:     args.DateTo,
	})
	return h.respond(ctx, ToolSearchNews, items, err)
}

func (h *handlers) secondaryFilter(ctx context.Context, _ *mcp.CallToolRequest, args secondaryFilterArgs) (*mcp.CallToolResult, any, error) {
	h.log.Info("call tool",
		slog.String("tool", ToolSecondaryFilter),
		slog.String("primary_query", args.PrimaryQuery),
		slog.String("secondary_query", args.SecondaryQuery),
	)

	items, err := h.svc.SearchNewsWithSecondaryFilter(ctx, news.SecondaryRequest{
		PrimaryQuery:   args.PrimaryQuery,
		SecondaryQuery: args.SecondaryQuery,
		Source:         args.Source,
		MaxResults:     args.MaxResults,
		DateFrom:       args.DateFrom,
		DateTo:         args.DateTo,
	})
	return h.respond(ctx, ToolSecondaryFilter, items, err)
}

func (h *handlers) readNews(ctx context.Context, _ *mcp.CallToolRequest, args readNewsArgs) (*mcp.CallToolResult, any, error) {
	h.log.Info("call tool", slog.String("tool", ToolReadNews), slog.String("news_id", args.NewsID))

	detail, err := h.svc.ReadNews(ctx, args.NewsID)
	return h.respond(ctx, ToolReadNews, detail, err)
}

func (h *handlers) topicNews(ctx context.Context, _ *mcp.CallToolRequest, args topicNewsArgs) (*mcp.CallToolResult, any, error) {
	secondary := args.secondary()
	h.log.Info("call tool",
		slog.String("tool", ToolTopicNews),
		slog.Int("primary_queries", len(args.PrimaryQueries)),
		slog.Int("secondary_queries", len(secondary)),
		slog.Int("sources", len(args.Sources)),
	)

	result, err := h.svc.SearchTopicNews(ctx, news.TopicRequest{
		PrimaryQueries:   args.PrimaryQueries,
		SecondaryQueries: secondary,
		Sources:          args.Sources,
		SearchWord:       args.SearchWord,
		MaxResults:       args.MaxResults,
		DateFrom:         args.DateFrom,
		DateTo:           args.DateTo,
	})
	return h.respond(ctx, ToolTopicNews, result, err)
}

// respond renders payload as JSON text, or a generic error result.
func (h *handlers) respond(ctx context.Context, tool string, payload any, err error) (*mcp.CallToolResult, any, error) {
	h.metrics.IncTool(tool, err)

	if err != nil {
		attrs := []any{slog.String("tool", tool), slog.Any("err", err)}
		if rc := pipeline.FromContext(ctx); rc != nil {
			attrs = append(attrs, slog.String("client_ip", rc.ClientIP), slog.String("request_id", rc.RequestID))
		}
		h.log.Error("tool call failed", attrs...)
		return errorResult(err), nil, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal %s result: %w", tool, err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func errorResult(err error) *mcp.CallToolResult {
	msg := msgFailed
	if errors.Is(err, elasticsearch.ErrTransport) || errors.Is(err, context.DeadlineExceeded) {
		msg = msgUnavailable
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}
