package textutil_test

import (
	"testing"

	"github.com/DeafMist/news-mcp/internal/textutil"
	"github.com/stretchr/testify/require"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{name: "nil", input: nil, want: nil},
		{name: "only blanks", input: []string{"", "  "}, want: nil},
		{name: "trim", input: []string{" AI ", "chips"}, want: []string{"AI", "chips"}},
		{name: "dedupe keeps order", input: []string{"b", "a", "b", " a"}, want: []string{"b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, textutil.Terms(tt.input))
		})
	}
}

func TestIsISODate(t *testing.T) {
	require.True(t, textutil.IsISODate("2024-06-01"))
	require.False(t, textutil.IsISODate("2024-6-1"))
	require.False(t, textutil.IsISODate("2024-13-01"))
	require.False(t, textutil.IsISODate("2024-06-01T00:00:00Z"))
	require.False(t, textutil.IsISODate(""))
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "entities", input: "AT&amp;T &quot;deal&quot;", want: `AT&T "deal"`},
		{name: "collapse whitespace", input: "foo\n\nbar\t baz ", want: "foo bar baz"},
		{name: "keeps punctuation", input: "Huawei 5G: what's next?", want: "Huawei 5G: what's next?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, textutil.CleanTitle(tt.input))
		})
	}
}

func TestTitleFromContent(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxWords int
		want     string
	}{
		{name: "empty", text: "", maxWords: 10, want: ""},
		{name: "single sentence", text: "Chip exports rose sharply.", maxWords: 10, want: "Chip exports rose sharply"},
		{name: "multiple sentences", text: "Markets rallied! Bonds fell. Oil flat.", maxWords: 10, want: "Markets rallied"},
		{name: "cjk full stop", text: "实验室正式启用。更多内容", maxWords: 10, want: "实验室正式启用"},
		{name: "long text truncated", text: "One two three four five six seven", maxWords: 5, want: "One two three four five..."},
		{name: "urls ignored", text: "Read https://example.com/a.b now", maxWords: 10, want: "Read now"},
		{name: "unlimited words", text: "Regional banks report earnings", maxWords: 0, want: "Regional banks report earnings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, textutil.TitleFromContent(tt.text, tt.maxWords))
		})
	}
}
