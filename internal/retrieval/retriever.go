// Package retrieval turns a store search into the context string handed to the model.
package retrieval

import (
	"context"
	"log/slog"
	"strings"

	"syllabiq/internal/domain"
)

// NoContext is returned by Format for an empty result. The responder treats
// it as a signal to decline.
const NoContext = "No relevant context found in the knowledge base."

const (
	header    = "Retrieved Context:\n"
	separator = "\n---\n"
	preview   = 100
)

// Retriever searches a store and caps the result at K.
type Retriever struct {
	store domain.VectorStore
	topK  int
}

func New(store domain.VectorStore, topK int) *Retriever {
	if topK <= 0 {
		topK = domain.DefaultTopK
	}
	return &Retriever{store: store, topK: topK}
}

// Retrieve returns at most K results ordered by descending score.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error) {
	results, err := r.store.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	domain.SortResults(results)
	results = domain.Truncate(results, r.topK)

	slog.Info("retrieved chunks", "store", r.store.Name(), "query", query, "count", len(results))
	for i, res := range results {
		slog.Debug("retrieved chunk",
			"rank", i,
			"score", res.Score,
			"source", res.Chunk.Filename,
			"chunk", res.Chunk.Index,
			"preview", Preview(res.Chunk.Text))
	}
	return results, nil
}

// Context retrieves and formats in one step.
func (r *Retriever) Context(ctx context.Context, query string) (string, error) {
	results, err := r.Retrieve(ctx, query)
	if err != nil {
		return "", err
	}
	return Format(results), nil
}

// Format joins result texts under a fixed header, or returns NoContext.
func Format(results []domain.SearchResult) string {
	if len(results) == 0 {
		return NoContext
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = "Content: " + r.Chunk.Text
	}
	return header + strings.Join(parts, separator)
}

// IsNoContext reports whether s is the empty-result sentinel.
func IsNoContext(s string) bool {
	return strings.TrimSpace(s) == NoContext
}

// Preview returns the first 100 characters of s on a single line.
func Preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= preview {
		return s
	}
	return string(r[:preview]) + "..."
}
