package tools

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// topicSchema is inferred from topicNewsArgs, with the list arguments widened
// to also accept a single string.
func topicSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[topicNewsArgs](nil)
	if err != nil {
		return nil, fmt.Errorf("infer topic schema: %w", err)
	}

	lists := map[string]string{
		"primary_queries":   "topic labels; each label is searched on its own and the results are combined with OR",
		"secondary_queries": "filter words combined with AND into every label",
		"secondary_querys":  "alias of secondary_queries",
		"sources":           "sources combined with AND into every label",
	}
	for name, desc := range lists {
		schema.Properties[name] = stringOrList(desc)
	}
	return schema, nil
}

func stringOrList(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Description: desc,
		AnyOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		},
	}
}
