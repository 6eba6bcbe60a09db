package models

// NewsRecord is the best-effort projection of an indexed news document.
// Fields the index carries beyond the catalogued ones land in Extra.
type NewsRecord struct {
	ID          string
	Title       string
	Source      string
	URL         string
	ReleaseTime string
	Content     string
	Extra       map[string]any
}

// NewsSummary is returned by every search operation.
type NewsSummary struct {
	NewsID      string         `json:"news_id"`
	Title       string         `json:"title"`
	Source      string         `json:"source"`
	URL         string         `json:"url"`
	ReleaseTime string         `json:"release_time"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// NewsDetail is returned only by the by-id lookup.
type NewsDetail struct {
	NewsSummary
	Content string `json:"content"`
}

// TopicResult pairs the engine-reported total with the returned page.
type TopicResult struct {
	Total int64         `json:"total"`
	Data  []NewsSummary `json:"data"`
}

// Summary projects a record onto the summary shape. Content is never copied.
func (r NewsRecord) Summary() NewsSummary {
	return NewsSummary{
		NewsID:      r.ID,
		Title:       r.Title,
		Source:      r.Source,
		URL:         r.URL,
		ReleaseTime: r.ReleaseTime,
		Extra:       copyExtra(r.Extra),
	}
}

// Detail projects a record onto the detail shape.
func (r NewsRecord) Detail() NewsDetail {
	return NewsDetail{NewsSummary: r.Summary(), Content: r.Content}
}

func copyExtra(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
