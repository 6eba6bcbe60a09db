package models_test

import (
	"encoding/json"
	"testing"

	"github.com/DeafMist/news-mcp/internal/models"
	"github.com/stretchr/testify/require"
)

func TestSummaryNeverCarriesContent(t *testing.T) {
	rec := models.NewsRecord{
		ID:      "600001_1",
		Title:   "Lab opens",
		Content: "long body",
		Extra:   map[string]any{"author": "desk"},
	}

	data, err := json.Marshal(rec.Summary())
	require.NoError(t, err)
	require.NotContains(t, string(data), "content")
	require.Contains(t, string(data), `"news_id":"600001_1"`)
	require.Contains(t, string(data), `"author":"desk"`)

	detail := rec.Detail()
	require.Equal(t, "long body", detail.Content)
	require.Equal(t, "Lab opens", detail.Title)
}

func TestSummaryCopiesExtra(t *testing.T) {
	rec := models.NewsRecord{Extra: map[string]any{"k": "v"}}
	sum := rec.Summary()
	sum.Extra["k"] = "changed"
	require.Equal(t, "v", rec.Extra["k"])

	require.Nil(t, models.NewsRecord{}.Summary().Extra)
}
