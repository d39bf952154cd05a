package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"syllabiq/internal/llm"
)

// Capability enumerates what the model may ask the responder to do.
type Capability int

const (
	CapabilitySearch Capability = iota
)

// SearchToolName is the function name the model sees for CapabilitySearch.
const SearchToolName = "search_knowledge_base"

// Searcher returns the formatted context for a query, or the no-context sentinel.
type Searcher interface {
	Context(ctx context.Context, query string) (string, error)
}

type searchArgs struct {
	Query string `json:"query"`
}

func searchDefinition(curriculum string) llm.ToolDefinition {
	return llm.ToolDefinition{
		Name: SearchToolName,
		Description: fmt.Sprintf("Search the %s course notes and return the passages relevant to the query. "+
			"Rewrite follow-up questions into a standalone query before searching.", curriculum),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "A standalone search query.",
				},
			},
			"required": []string{"query"},
		},
	}
}

// capabilityFor maps a requested function name to a capability.
func capabilityFor(name string) (Capability, bool) {
	switch name {
	case SearchToolName:
		return CapabilitySearch, true
	}
	return 0, false
}

func parseSearchArgs(raw string) (string, error) {
	var args searchArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	q := strings.TrimSpace(args.Query)
	if q == "" {
		return "", fmt.Errorf("query must not be empty")
	}
	return q, nil
}
