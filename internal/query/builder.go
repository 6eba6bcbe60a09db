package query

// Index field names used by the builders.
const (
	FieldTitle       = "title"
	FieldContent     = "content"
	FieldSource      = "source.keyword"
	FieldReleaseTime = "release_time"
	FieldNewsID      = "news_id"
)

var (
	textFields     = []string{FieldTitle, FieldContent}
	weightedFields = []string{FieldTitle + "^5", FieldContent}
)

// Keyword narrows a plain keyword search.
type Keyword struct {
	Query    string
	Source   string
	DateFrom string
	DateTo   string
}

// Secondary narrows a search that requires two independent keyword matches.
type Secondary struct {
	Primary   string
	Secondary string
	Source    string
	DateFrom  string
	DateTo    string
}

// Topic drives topic monitoring: every label and every source forms a branch,
// each branch is ANDed with the filter phrases and the shared filters, and all
// branches are ORed.
type Topic struct {
	Labels     []string
	Filters    []string
	Sources    []string
	SearchWord string
	DateFrom   string
	DateTo     string
}

// Sort is an ordering hint for the executed query.
type Sort struct {
	Field string
	Desc  bool
}

// ReleaseTimeDesc orders newest first.
var ReleaseTimeDesc = []Sort{{Field: FieldReleaseTime, Desc: true}}

// BuildKeyword compiles a keyword search.
func BuildKeyword(c Keyword) Node {
	var clauses []Node
	if c.Query != "" {
		clauses = append(clauses, MultiMatch(textFields, c.Query))
	}
	clauses = appendFilters(clauses, c.Source, c.DateFrom, c.DateTo)
	return collapse(clauses)
}

// BuildSecondary compiles a primary+secondary keyword search.
func BuildSecondary(c Secondary) Node {
	var clauses []Node
	if c.Primary != "" {
		clauses = append(clauses, MultiMatch(textFields, c.Primary))
	}
	if c.Secondary != "" {
		clauses = append(clauses, MultiMatch(textFields, c.Secondary))
	}
	clauses = appendFilters(clauses, c.Source, c.DateFrom, c.DateTo)
	return collapse(clauses)
}

// BuildTopic compiles a topic search into Or(And(...), ...). With no labels
// and no sources the result is an empty Or; check IsEmpty before executing.
func BuildTopic(c Topic) Node {
	bases := make([]Node, 0, len(c.Labels)+len(c.Sources))
	for _, label := range c.Labels {
		bases = append(bases, PhraseMatch(FieldTitle, label))
	}
	for _, source := range c.Sources {
		bases = append(bases, TermMatch(FieldSource, source))
	}

	var common []Node
	if c.SearchWord != "" {
		common = append(common, MultiMatchAll(weightedFields, c.SearchWord))
	}
	if c.DateFrom != "" || c.DateTo != "" {
		common = append(common, Range(FieldReleaseTime, c.DateFrom, c.DateTo))
	}

	branches := make([]Node, 0, len(bases)*max(len(c.Filters), 1))
	for _, base := range bases {
		if len(c.Filters) == 0 {
			branches = append(branches, And(append([]Node{base}, common...)...))
			continue
		}
		for _, filter := range c.Filters {
			parts := make([]Node, 0, 2+len(common))
			parts = append(parts, base, PhraseMatch(FieldTitle, filter))
			parts = append(parts, common...)
			branches = append(branches, And(parts...))
		}
	}

	return Or(branches...)
}

// ByID looks a document up by its exact identifier.
func ByID(id string) Node {
	return TermMatch(FieldNewsID, id)
}

func appendFilters(clauses []Node, source, from, to string) []Node {
	if source != "" {
		clauses = append(clauses, TermMatch(FieldSource, source))
	}
	if from != "" || to != "" {
		clauses = append(clauses, Range(FieldReleaseTime, from, to))
	}
	return clauses
}

func collapse(clauses []Node) Node {
	switch len(clauses) {
	case 0:
		return MatchAll()
	case 1:
		return clauses[0]
	default:
		return And(clauses...)
	}
}
