package domain

import (
	"context"
	"time"
)

// Document represents a single source file loaded for ingestion.
type Document struct {
	Filename string
	Content  string
	// Pages holds per-page text for paginated sources (PDF). Empty for flat text.
	Pages []string
}

// ChunkType categorises the kind of content a chunk holds.
type ChunkType string

const (
	ChunkParagraph ChunkType = "paragraph"
	ChunkHeading   ChunkType = "heading"
	ChunkList      ChunkType = "list"
	ChunkTable     ChunkType = "table"
	ChunkCode      ChunkType = "code"
	ChunkPage      ChunkType = "page"
)

// Chunk is a contiguous span of document text stored with its embedding.
type Chunk struct {
	Text      string
	Filename  string
	Index     int
	Type      ChunkType
	Embedding []float32
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a conversation history.
type Turn struct {
	Role      Role
	Content   string
	Timestamp time.Time
	// Error marks turns of a failed exchange. Such turns are displayed but
	// never sent back to the model.
	Error bool
}

// Embedder converts free text into a fixed-length vector.
type Embedder interface {
	Name() string
	// Dimension is zero until the first vector has been produced.
	Dimension() int
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// VectorStore answers similarity queries over stored chunks. Results are
// ordered by descending score and capped at the store's configured limit.
type VectorStore interface {
	Name() string
	Search(ctx context.Context, query string) ([]SearchResult, error)
	Close() error
}

// Indexer is implemented by stores that accept new chunks.
type Indexer interface {
	Index(ctx context.Context, chunks []Chunk) error
	Reset(ctx context.Context) error
}

// Store is a VectorStore that can also be written to.
type Store interface {
	VectorStore
	Indexer
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
