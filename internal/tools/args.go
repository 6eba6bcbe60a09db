package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stringList accepts either a JSON array of strings or a single string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			*l = nil
			return nil
		}
		*l = stringList{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected a string or a list of strings: %w", err)
	}
	*l = many
	return nil
}

type searchNewsArgs struct {
	Query      string `json:"query" jsonschema:"keywords or phrase to search for, e.g. 'artificial intelligence' or 'huawei 5G'"`
	Source     string `json:"source,omitempty" jsonschema:"only return news from this source"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"number of news items to return, 1-100, default 20"`
	DateFrom   string `json:"date_from,omitempty" jsonschema:"earliest release date, YYYY-MM-DD, inclusive"`
	DateTo     string `json:"date_to,omitempty" jsonschema:"latest release date, YYYY-MM-DD, inclusive"`
}

type secondaryFilterArgs struct {
	PrimaryQuery   string `json:"primary_query" jsonschema:"main keywords or phrase"`
	SecondaryQuery string `json:"secondary_query" jsonschema:"keywords or phrase that must also match"`
	Source         string `json:"source,omitempty" jsonschema:"only return news from this source"`
	MaxResults     int    `json:"max_results,omitempty" jsonschema:"number of news items to return, 1-100, default 20"`
	DateFrom       string `json:"date_from,omitempty" jsonschema:"earliest release date, YYYY-MM-DD, inclusive"`
	DateTo         string `json:"date_to,omitempty" jsonschema:"latest release date, YYYY-MM-DD, inclusive"`
}

type readNewsArgs struct {
	NewsID string `json:"news_id" jsonschema:"news_id taken from a search result, e.g. '600001_1'"`
}

type topicNewsArgs struct {
	PrimaryQueries   stringList `json:"primary_queries"`
	SecondaryQueries stringList `json:"secondary_queries,omitempty"`
	// Older clients send the misspelt name.
	LegacySecondary stringList `json:"secondary_querys,omitempty"`
	Sources         stringList `json:"sources,omitempty"`
	SearchWord      string     `json:"search_word,omitempty" jsonschema:"extra keywords every result must match"`
	MaxResults      int        `json:"max_results,omitempty" jsonschema:"number of news items to return, 1-100, default 15"`
	DateFrom        string     `json:"date_from,omitempty" jsonschema:"earliest release date, YYYY-MM-DD, inclusive"`
	DateTo          string     `json:"date_to,omitempty" jsonschema:"latest release date, YYYY-MM-DD, inclusive"`
}

func (a topicNewsArgs) secondary() []string {
	if len(a.SecondaryQueries) > 0 {
		return a.SecondaryQueries
	}
	return a.LegacySecondary
}
