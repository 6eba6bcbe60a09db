package elasticsearch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/DeafMist/news-mcp/internal/models"
	"github.com/DeafMist/news-mcp/internal/textutil"
)

const derivedTitleWords = 20

// mapHit converts one hit into a record. It never fails: a document that does
// not decode or carries odd types still yields whatever could be recovered.
func (c *Client) mapHit(id string, raw json.RawMessage) models.NewsRecord {
	rec := models.NewsRecord{ID: id}

	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		c.log.Warn("undecodable news document, returning partial record",
			slog.String("id", id),
			slog.Any("err", err),
		)
		return rec
	}

	for key, value := range doc {
		switch key {
		case "news_id":
			if s := stringify(value); s != "" {
				rec.ID = s
			}
		case "title":
			rec.Title = textutil.CleanTitle(stringify(value))
		case "source":
			rec.Source = stringify(value)
		case "url":
			rec.URL = stringify(value)
		case "release_time":
			rec.ReleaseTime = stringify(value)
		case "content":
			rec.Content = stringify(value)
		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]any)
			}
			rec.Extra[key] = value
		}
	}

	if rec.Title == "" && rec.Content != "" {
		rec.Title = textutil.TitleFromContent(rec.Content, derivedTitleWords)
	}

	return rec
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
