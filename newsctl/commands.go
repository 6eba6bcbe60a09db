package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/DeafMist/news-mcp/internal/elasticsearch"
	"github.com/DeafMist/news-mcp/internal/models"
	"github.com/DeafMist/news-mcp/internal/news"
	"github.com/DeafMist/news-mcp/internal/query"
)

type serviceFactory func(dryRun bool, out io.Writer) (*news.Service, error)

// dateFlags are shared by every search command.
type dateFlags struct {
	from string
	to   string
	max  int
}

func (d *dateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.from, "from", "", "earliest release date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&d.to, "to", "", "latest release date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&d.max, "max", 0, "number of results (default depends on the command, capped by SEARCH_MAX_RESULTS)")
}

func newRootCmd(open serviceFactory) *cobra.Command {
	var dryRun bool

	root := &cobra.Command{
		Use:   "newsctl",
		Short: "Query the news index the way the MCP tools do",
		Long: `newsctl runs the news search operations from the command line.

It uses the same query composition, result ceiling and retry policy as the
MCP server and reads the same ELASTICSEARCH_* and SEARCH_* variables.
With --dry-run the search body is printed instead of being sent.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "print the search request instead of executing it")

	service := func(cmd *cobra.Command) (*news.Service, error) {
		return open(dryRun, cmd.OutOrStdout())
	}

	root.AddCommand(
		newSearchCmd(service),
		newSecondaryCmd(service),
		newTopicCmd(service),
		newReadCmd(service),
	)
	return root
}

func newSearchCmd(service func(*cobra.Command) (*news.Service, error)) *cobra.Command {
	var (
		dates  dateFlags
		source string
	)
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search news by keywords",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service(cmd)
			if err != nil {
				return err
			}
			items, err := svc.SearchNews(cmd.Context(), news.SearchRequest{
				Query:      args[0],
				Source:     source,
				MaxResults: dates.max,
				DateFrom:   dates.from,
				DateTo:     dates.to,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), items)
		},
	}
	dates.register(cmd)
	cmd.Flags().StringVar(&source, "source", "", "only news from this source")
	return cmd
}

func newSecondaryCmd(service func(*cobra.Command) (*news.Service, error)) *cobra.Command {
	var (
		dates  dateFlags
		source string
	)
	cmd := &cobra.Command{
		Use:   "secondary PRIMARY SECONDARY",
		Short: "Search news matching both a primary and a secondary keyword",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service(cmd)
			if err != nil {
				return err
			}
			items, err := svc.SearchNewsWithSecondaryFilter(cmd.Context(), news.SecondaryRequest{
				PrimaryQuery:   args[0],
				SecondaryQuery: args[1],
				Source:         source,
				MaxResults:     dates.max,
				DateFrom:       dates.from,
				DateTo:         dates.to,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), items)
		},
	}
	dates.register(cmd)
	cmd.Flags().StringVar(&source, "source", "", "only news from this source")
	return cmd
}

func newTopicCmd(service func(*cobra.Command) (*news.Service, error)) *cobra.Command {
	var (
		dates   dateFlags
		labels  []string
		filters []string
		sources []string
		word    string
	)
	cmd := &cobra.Command{
		Use:   "topic",
		Short: "Search several topics at once, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := service(cmd)
			if err != nil {
				return err
			}
			res, err := svc.SearchTopicNews(cmd.Context(), news.TopicRequest{
				PrimaryQueries:   labels,
				SecondaryQueries: filters,
				Sources:          sources,
				SearchWord:       word,
				MaxResults:       dates.max,
				DateFrom:         dates.from,
				DateTo:           dates.to,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	dates.register(cmd)
	cmd.Flags().StringSliceVar(&labels, "label", nil, "topic label, repeatable")
	cmd.Flags().StringSliceVar(&filters, "filter", nil, "filter word combined with every label, repeatable")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "source combined with every label, repeatable")
	cmd.Flags().StringVar(&word, "word", "", "extra keywords every result must match")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}

func newReadCmd(service func(*cobra.Command) (*news.Service, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "read NEWS_ID",
		Short: "Print one news item with its full content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service(cmd)
			if err != nil {
				return err
			}
			detail, err := svc.ReadNews(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), detail)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// printGateway writes the search body it would send and returns no hits.
type printGateway struct {
	out     io.Writer
	ceiling int
}

func (g *printGateway) Execute(_ context.Context, node query.Node, opts elasticsearch.SearchOptions) (*elasticsearch.SearchResult, error) {
	size := min(max(opts.Size, 0), g.ceiling)
	if _, err := fmt.Fprintf(g.out, "# %s\n", opts.Operation); err != nil {
		return nil, err
	}
	if err := printJSON(g.out, query.Request(node, size, opts.Fields, opts.Sort)); err != nil {
		return nil, err
	}
	return &elasticsearch.SearchResult{}, nil
}

func (g *printGateway) GetByID(ctx context.Context, id string) (models.NewsRecord, bool, error) {
	_, err := g.Execute(ctx, query.ByID(id), elasticsearch.SearchOptions{
		Operation: "get_by_id",
		Size:      1,
		Fields:    elasticsearch.DetailFields,
	})
	return models.NewsRecord{}, false, err
}
