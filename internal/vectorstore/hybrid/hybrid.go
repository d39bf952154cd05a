// Package hybrid is an embedded on-disk store that answers every query with
// two legs over the same chunks: dense nearest neighbours from chromem-go and
// full-text matches from bleve, merged by reciprocal-rank fusion.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/philippgille/chromem-go"
	"golang.org/x/sync/errgroup"

	"syllabiq/internal/config"
	"syllabiq/internal/domain"
	"syllabiq/internal/fusion"
)

const (
	fieldText     = "text"
	fieldFilename = "filename"
	fieldIndex    = "chunk_index"
	fieldType     = "chunk_type"
)

// Store keeps a chromem collection and a bleve index side by side under one directory.
type Store struct {
	path     string
	table    string
	compress bool
	rrfK     int
	topK     int
	embedder domain.Embedder

	mu    sync.RWMutex
	db    *chromem.DB
	coll  *chromem.Collection
	index bleve.Index
}

var _ domain.Store = (*Store)(nil)

// Open opens (or creates) the store rooted at cfg.Path.
func Open(cfg *config.HybridConfig, table string, embedder domain.Embedder, topK int) (*Store, error) {
	s := &Store{
		path:     cfg.Path,
		table:    table,
		compress: cfg.Compress,
		rrfK:     cfg.RRFConstant,
		topK:     topK,
		embedder: embedder,
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	slog.Debug("hybrid store opened", "path", s.path, "table", table, "documents", s.coll.Count())
	return s, nil
}

func (s *Store) open() error {
	if err := os.MkdirAll(s.path, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := chromem.NewPersistentDB(filepath.Join(s.path, "vectors"), s.compress)
	if err != nil {
		return fmt.Errorf("failed to open vector database: %w", err)
	}
	coll, err := db.GetOrCreateCollection(s.table, nil, precomputed)
	if err != nil {
		return fmt.Errorf("failed to get/create collection %q: %w", s.table, err)
	}
	index, err := openIndex(s.indexPath())
	if err != nil {
		return err
	}
	s.db, s.coll, s.index = db, coll, index
	return nil
}

func (s *Store) indexPath() string {
	return filepath.Join(s.path, s.table+".bleve")
}

func openIndex(path string) (bleve.Index, error) {
	index, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		mapping := bleve.NewIndexMapping()
		mapping.DefaultAnalyzer = en.AnalyzerName
		index, err = bleve.New(path, mapping)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open full-text index %s: %w", path, err)
	}
	return index, nil
}

// precomputed is the collection's embedding func. Vectors always come from
// the configured Embedder, so chromem must never need to compute one.
func precomputed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding function called but vectors should be pre-computed")
}

func (s *Store) Name() string { return "hybrid" }

// Search runs the dense and lexical legs concurrently and fuses their rankings.
func (s *Store) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	depth := s.topK
	if depth <= 0 {
		depth = domain.DefaultTopK
	}

	var dense, lexical []domain.SearchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dense, err = s.denseSearch(gctx, query, depth)
		return err
	})
	g.Go(func() error {
		var err error
		lexical, err = s.lexicalSearch(gctx, query, depth)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fusion.ReciprocalRankFusion(s.rrfK, dense, lexical)
	slog.Debug("hybrid search", "dense", len(dense), "lexical", len(lexical), "fused", len(fused))
	return domain.Truncate(fused, depth), nil
}

func (s *Store) denseSearch(ctx context.Context, query string, depth int) ([]domain.SearchResult, error) {
	n := s.coll.Count()
	if n == 0 {
		return nil, nil
	}
	if depth > n {
		depth = n
	}
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if domain.IsZeroVector(vector) {
		return nil, nil
	}
	hits, err := s.coll.QueryEmbedding(ctx, vector, depth, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	out := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		idx, _ := strconv.Atoi(h.Metadata[fieldIndex])
		out = append(out, domain.SearchResult{
			Chunk: domain.Chunk{
				Text:     h.Content,
				Filename: h.Metadata[fieldFilename],
				Index:    idx,
				Type:     domain.ChunkType(h.Metadata[fieldType]),
			},
			Score: float64(h.Similarity),
		})
	}
	return out, nil
}

func (s *Store) lexicalSearch(ctx context.Context, query string, depth int) ([]domain.SearchResult, error) {
	q := bleve.NewMatchQuery(query)
	q.SetField(fieldText)
	req := bleve.NewSearchRequestOptions(q, depth, 0, false)
	req.Fields = []string{fieldText, fieldFilename, fieldIndex, fieldType}
	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	out := make([]domain.SearchResult, 0, len(res.Hits))
	for _, h := range res.Hits {
		c := domain.Chunk{}
		c.Text, _ = h.Fields[fieldText].(string)
		c.Filename, _ = h.Fields[fieldFilename].(string)
		if v, ok := h.Fields[fieldIndex].(float64); ok {
			c.Index = int(v)
		}
		if v, ok := h.Fields[fieldType].(string); ok {
			c.Type = domain.ChunkType(v)
		}
		out = append(out, domain.SearchResult{Chunk: c, Score: h.Score})
	}
	return out, nil
}

// Index adds chunks to both the vector collection and the full-text index.
func (s *Store) Index(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]chromem.Document, 0, len(chunks))
	batch := s.index.NewBatch()
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s#%d has no embedding", c.Filename, c.Index)
		}
		id := docID(c)
		docs = append(docs, chromem.Document{
			ID:        id,
			Content:   c.Text,
			Embedding: c.Embedding,
			Metadata: map[string]string{
				fieldFilename: c.Filename,
				fieldIndex:    strconv.Itoa(c.Index),
				fieldType:     string(c.Type),
			},
		})
		if err := batch.Index(id, map[string]interface{}{
			fieldText:     c.Text,
			fieldFilename: c.Filename,
			fieldIndex:    c.Index,
			fieldType:     string(c.Type),
		}); err != nil {
			return fmt.Errorf("failed to add %s to full-text batch: %w", id, err)
		}
	}
	if err := s.coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index documents: %w", err)
	}
	slog.Info("indexed chunks", "store", "hybrid", "table", s.table, "count", len(chunks))
	return nil
}

// Reset deletes the collection and the full-text index and recreates them empty.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(s.table); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	if err := s.index.Close(); err != nil {
		return fmt.Errorf("failed to close full-text index: %w", err)
	}
	if err := os.RemoveAll(s.indexPath()); err != nil {
		return fmt.Errorf("failed to remove full-text index: %w", err)
	}
	return s.open()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slog.Debug("hybrid store closed", "path", s.path)
	return s.index.Close()
}

func docID(c domain.Chunk) string {
	return c.Filename + "#" + strconv.Itoa(c.Index)
}
