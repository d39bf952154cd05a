package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"syllabiq/internal/config"
	"syllabiq/internal/domain"
)

// Storage keeps chunks in a Qdrant collection over gRPC.
// It assumes cosine distance and creates the collection on first index.
type Storage struct {
	client     *qdrant.Client
	collection string
	embedder   domain.Embedder
	topK       int
}

var _ domain.Store = (*Storage)(nil)

// pointNamespace derives stable point ids so re-ingesting a file overwrites its chunks.
var pointNamespace = uuid.MustParse("6f1b7c1e-4d0a-4c55-9a53-7f0f3c6d2e11")

func NewStorage(cfg *config.QdrantConfig, collection string, embedder domain.Embedder, topK int) (*Storage, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client for %s:%d: %w", cfg.Host, cfg.Port, classify(err))
	}
	return &Storage{client: client, collection: collection, embedder: embedder, topK: topK}, nil
}

func (s *Storage) Name() string { return "qdrant" }

func (s *Storage) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection existence: %w", classify(err))
	}
	if !exists {
		return nil, nil
	}
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	limit := s.topK
	if limit <= 0 {
		limit = domain.DefaultTopK
	}
	resp, err := s.client.GetPointsClient().Search(ctx, &qdrant.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", classify(err))
	}
	results := make([]domain.SearchResult, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		results = append(results, domain.SearchResult{
			Chunk: chunkFromPayload(p.GetPayload()),
			Score: float64(p.GetScore()),
		})
	}
	domain.SortResults(results)
	return domain.Truncate(results, limit), nil
}

func (s *Storage) Index(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	dim := len(chunks[0].Embedding)
	if dim == 0 {
		return errors.New("chunks have no embeddings")
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", classify(err))
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create collection: %w", classify(err))
		}
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return fmt.Errorf("chunk %s#%d: vector dimension %d, want %d", c.Filename, c.Index, len(c.Embedding), dim)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(c)),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: payloadFromChunk(c),
		})
	}
	wait := true
	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("failed to upsert points: %w", classify(err))
	}
	slog.Info("indexed chunks", "store", "qdrant", "collection", s.collection, "count", len(chunks))
	return nil
}

func (s *Storage) Reset(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", classify(err))
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", classify(err))
	}
	return nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

// PointID is the deterministic uuid of a chunk.
func PointID(c domain.Chunk) string {
	return uuid.NewSHA1(pointNamespace, []byte(c.Filename+"#"+strconv.Itoa(c.Index))).String()
}

func payloadFromChunk(c domain.Chunk) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		"text":        qdrant.NewValueString(c.Text),
		"filename":    qdrant.NewValueString(c.Filename),
		"chunk_index": qdrant.NewValueInt(int64(c.Index)),
		"chunk_type":  qdrant.NewValueString(string(c.Type)),
	}
}

func chunkFromPayload(payload map[string]*qdrant.Value) domain.Chunk {
	var c domain.Chunk
	for key, v := range payload {
		switch key {
		case "text":
			c.Text = v.GetStringValue()
		case "filename":
			c.Filename = v.GetStringValue()
		case "chunk_type":
			c.Type = domain.ChunkType(v.GetStringValue())
		case "chunk_index":
			switch kind := v.GetKind().(type) {
			case *qdrant.Value_IntegerValue:
				c.Index = int(kind.IntegerValue)
			case *qdrant.Value_DoubleValue:
				c.Index = int(kind.DoubleValue)
			}
		}
	}
	return c
}

func classify(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", domain.ErrConnection, err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
	}
	return err
}
