package query

// Request renders a complete search body for node.
func Request(node Node, size int, fields []string, sort []Sort) map[string]any {
	body := map[string]any{
		"query":            node.Source(),
		"size":             size,
		"track_total_hits": true,
	}
	if len(fields) > 0 {
		body["_source"] = cloneStrings(fields)
	}
	if len(sort) > 0 {
		clauses := make([]map[string]any, 0, len(sort))
		for _, s := range sort {
			order := "asc"
			if s.Desc {
				order = "desc"
			}
			clauses = append(clauses, map[string]any{s.Field: map[string]any{"order": order}})
		}
		body["sort"] = clauses
	}
	return body
}
