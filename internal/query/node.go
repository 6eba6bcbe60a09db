// Package query compiles news search criteria into an immutable boolean query
// tree and renders that tree as Elasticsearch query DSL.
package query

// Kind tags a node in the query tree.
type Kind int

const (
	KindMatchAll Kind = iota
	KindMultiMatch
	KindTerm
	KindPhrase
	KindRange
	KindAnd
	KindOr
)

func (k Kind) String() string {
	switch k {
	case KindMatchAll:
		return "match_all"
	case KindMultiMatch:
		return "multi_match"
	case KindTerm:
		return "term"
	case KindPhrase:
		return "match_phrase"
	case KindRange:
		return "range"
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	default:
		return "unknown"
	}
}

// Node is one element of a query tree. Nodes are values with unexported state;
// constructors copy every slice they receive so callers cannot mutate a built tree.
type Node struct {
	kind     Kind
	field    string
	fields   []string
	text     string
	operator string
	gte      string
	lte      string
	children []Node
}

// MatchAll matches every document.
func MatchAll() Node {
	return Node{kind: KindMatchAll}
}

// MultiMatch runs a full-text match of text over fields. Fields may carry
// boosts ("title^5").
func MultiMatch(fields []string, text string) Node {
	return Node{kind: KindMultiMatch, fields: cloneStrings(fields), text: text}
}

// MultiMatchAll is MultiMatch with every term required.
func MultiMatchAll(fields []string, text string) Node {
	n := MultiMatch(fields, text)
	n.operator = "and"
	return n
}

// TermMatch matches an exact value on a keyword field.
func TermMatch(field, value string) Node {
	return Node{kind: KindTerm, field: field, text: value}
}

// PhraseMatch matches text as a phrase on field.
func PhraseMatch(field, text string) Node {
	return Node{kind: KindPhrase, field: field, text: text}
}

// Range bounds field inclusively. Empty bounds are omitted.
func Range(field, gte, lte string) Node {
	return Node{kind: KindRange, field: field, gte: gte, lte: lte}
}

// And requires every child.
func And(children ...Node) Node {
	return Node{kind: KindAnd, children: cloneNodes(children)}
}

// Or requires at least one child.
func Or(children ...Node) Node {
	return Node{kind: KindOr, children: cloneNodes(children)}
}

func (n Node) Kind() Kind { return n.kind }
func (n Node) Field() string { return n.field }
func (n Node) Text() string { return n.text }
func (n Node) Operator() string { return n.operator }
func (n Node) Bounds() (gte, lte string) {
	return n.gte, n.lte
}

// Fields returns a copy of the multi-match field list.
func (n Node) Fields() []string { return cloneStrings(n.fields) }

// Children returns a copy of the child list of an And/Or node.
func (n Node) Children() []Node { return cloneNodes(n.children) }

// Len reports the number of direct children.
func (n Node) Len() int { return len(n.children) }

// IsEmpty reports whether the node is a boolean composite without children.
// An empty Or would match nothing (or everything, depending on the engine),
// so callers treat it as "no results" and skip the round-trip.
func (n Node) IsEmpty() bool {
	return (n.kind == KindAnd || n.kind == KindOr) && len(n.children) == 0
}

// Source renders the node as Elasticsearch query DSL.
func (n Node) Source() map[string]any {
	switch n.kind {
	case KindMultiMatch:
		body := map[string]any{
			"query":  n.text,
			"fields": cloneStrings(n.fields),
		}
		if n.operator != "" {
			body["operator"] = n.operator
		}
		return map[string]any{"multi_match": body}
	case KindTerm:
		return map[string]any{"term": map[string]any{n.field: n.text}}
	case KindPhrase:
		return map[string]any{"match_phrase": map[string]any{n.field: n.text}}
	case KindRange:
		bounds := map[string]any{}
		if n.gte != "" {
			bounds["gte"] = n.gte
		}
		if n.lte != "" {
			bounds["lte"] = n.lte
		}
		return map[string]any{"range": map[string]any{n.field: bounds}}
	case KindAnd:
		return map[string]any{"bool": map[string]any{"must": renderAll(n.children)}}
	case KindOr:
		return map[string]any{"bool": map[string]any{
			"should":               renderAll(n.children),
			"minimum_should_match": 1,
		}}
	default:
		return map[string]any{"match_all": map[string]any{}}
	}
}

func renderAll(nodes []Node) []map[string]any {
	out := make([]map[string]any, 0, len(nodes))
	for _, child := range nodes {
		out = append(out, child.Source())
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneNodes(in []Node) []Node {
	if len(in) == 0 {
		return nil
	}
	out := make([]Node, len(in))
	copy(out, in)
	return out
}
