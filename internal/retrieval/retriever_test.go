package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syllabiq/internal/domain"
)

type stubStore struct {
	results []domain.SearchResult
	err     error
	queries []string
}

func (s *stubStore) Name() string { return "stub" }
func (s *stubStore) Search(_ context.Context, q string) ([]domain.SearchResult, error) {
	s.queries = append(s.queries, q)
	return s.results, s.err
}
func (s *stubStore) Close() error { return nil }

func result(text string, idx int, score float64) domain.SearchResult {
	return domain.SearchResult{Chunk: domain.Chunk{Text: text, Filename: "cn.md", Index: idx}, Score: score}
}

func TestFormat(t *testing.T) {
	t.Run("empty returns sentinel", func(t *testing.T) {
		got := Format(nil)
		assert.Equal(t, NoContext, got)
		assert.True(t, IsNoContext(got))
	})

	t.Run("joins with separator", func(t *testing.T) {
		got := Format([]domain.SearchResult{result("first", 0, 0.9), result("second", 1, 0.8)})
		assert.Equal(t, "Retrieved Context:\nContent: first\n---\nContent: second", got)
		assert.False(t, IsNoContext(got))
	})
}

func TestRetriever_CapsAndOrders(t *testing.T) {
	store := &stubStore{}
	for i := 0; i < 15; i++ {
		store.results = append(store.results, result("chunk", i, float64(i)))
	}
	r := New(store, 10)

	got, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Equal(t, 14, got[0].Chunk.Index)
	assert.Equal(t, []string{"q"}, store.queries)
}

func TestRetriever_ContextEmpty(t *testing.T) {
	r := New(&stubStore{}, 0)

	got, err := r.Context(context.Background(), "quantum chromodynamics")
	require.NoError(t, err)
	assert.Equal(t, NoContext, got)
}

func TestRetriever_PropagatesErrors(t *testing.T) {
	r := New(&stubStore{err: domain.ErrConnection}, 10)

	_, err := r.Context(context.Background(), "q")
	assert.True(t, errors.Is(err, domain.ErrConnection))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b", Preview("a\n  b"))
	long := strings.Repeat("x", 150)
	assert.Equal(t, strings.Repeat("x", 100)+"...", Preview(long))
}
