// Package textutil normalizes caller input and indexed text.
package textutil

import (
	"html"
	"regexp"
	"strings"
	"time"
)

var (
	urlRegex   = regexp.MustCompile(`https?://[^\s]+`)
	whitespace = regexp.MustCompile(`\s+`)
)

const isoDate = "2006-01-02"

// Terms trims every entry, drops empties and duplicates, and keeps the first-seen order.
func Terms(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, raw := range in {
		term := strings.TrimSpace(raw)
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}

// IsISODate reports whether raw is a calendar date in YYYY-MM-DD form.
func IsISODate(raw string) bool {
	if len(raw) != len(isoDate) {
		return false
	}
	_, err := time.Parse(isoDate, raw)
	return err == nil
}

// CleanTitle decodes HTML entities and squeezes whitespace.
func CleanTitle(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// TitleFromContent derives a title from the first sentence or first maxWords
// words of content. URLs are ignored. Returns "" for empty content.
func TitleFromContent(content string, maxWords int) string {
	if content == "" {
		return ""
	}

	text := urlRegex.ReplaceAllString(html.UnescapeString(content), " ")

	if end := strings.IndexAny(text, ".!?。！？"); end > 0 {
		text = text[:end]
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	if maxWords > 0 && len(words) > maxWords {
		return strings.Join(words[:maxWords], " ") + "..."
	}
	return strings.Join(words, " ")
}
