package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"syllabiq/internal/domain"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	embedder domain.Embedder
	topK     int

	mu     sync.RWMutex
	chunks []domain.Chunk
}

var _ domain.Store = (*Storage)(nil)

func NewStorage(embedder domain.Embedder, topK int) *Storage {
	return &Storage{embedder: embedder, topK: topK}
}

func (s *Storage) Name() string { return "memory" }

func (s *Storage) Index(_ context.Context, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s#%d has no embedding", c.Filename, c.Index)
		}
		if len(s.chunks) > 0 && len(c.Embedding) != len(s.chunks[0].Embedding) {
			return errors.New("vector dimension mismatch")
		}
		s.chunks = append(s.chunks, c)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	s.mu.RLock()
	empty := len(s.chunks) == 0
	s.mu.RUnlock()
	if empty {
		return nil, nil
	}
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if domain.IsZeroVector(vector) {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]domain.SearchResult, 0, len(s.chunks))
	for _, c := range s.chunks {
		results = append(results, domain.SearchResult{Chunk: c, Score: cosine(c.Embedding, vector)})
	}
	domain.SortResults(results)
	return domain.Truncate(results, s.topK), nil
}

func (s *Storage) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	return nil
}

func (s *Storage) Close() error { return nil }

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
