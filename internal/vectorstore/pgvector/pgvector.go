// Package pgvector stores chunks in a PostgreSQL table with the vector
// extension and ranks them by cosine distance server-side.
package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"syllabiq/internal/config"
	"syllabiq/internal/domain"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Store is a pgvector-backed chunk table.
type Store struct {
	db       *sql.DB
	table    string
	embedder domain.Embedder
	topK     int
}

var _ domain.Store = (*Store)(nil)

// Open connects to PostgreSQL and verifies the connection. The handle holds a
// single connection that is reused for the lifetime of the store.
func Open(ctx context.Context, cfg *config.PostgresConfig, table string, embedder domain.Embedder, topK int) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, classify(err))
	}
	s, err := New(db, table, embedder, topK)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Debug("pgvector store opened", "host", cfg.Host, "database", cfg.Database, "table", table)
	return s, nil
}

// New wraps an existing database handle.
func New(db *sql.DB, table string, embedder domain.Embedder, topK int) (*Store, error) {
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{db: db, table: table, embedder: embedder, topK: topK}, nil
}

func (s *Store) Name() string { return "pgvector" }

func (s *Store) searchSQL() string {
	return fmt.Sprintf(`SELECT text, filename, chunk_index, chunk_type, 1 - (embedding <=> $1::vector) AS similarity
FROM %s
ORDER BY embedding <=> $1::vector, chunk_index
LIMIT $2`, pq.QuoteIdentifier(s.table))
}

// Search embeds the query and returns the nearest chunks by cosine distance.
func (s *Store) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.searchSQL(), Literal(vector), topK(s.topK))
	if err != nil {
		if isUndefinedTable(err) {
			slog.Warn("pgvector table does not exist yet", "table", s.table)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to search %s: %w", s.table, classify(err))
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var (
			r         domain.SearchResult
			chunkType string
		)
		if err := rows.Scan(&r.Chunk.Text, &r.Chunk.Filename, &r.Chunk.Index, &chunkType, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Chunk.Type = domain.ChunkType(chunkType)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", classify(err))
	}
	domain.SortResults(results)
	return domain.Truncate(results, s.topK), nil
}

// Index creates the extension and table if needed and upserts the chunks in one
// transaction. A chunk is identified by its filename and index, so
// re-ingesting a file overwrites its rows.
func (s *Store) Index(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	dim := len(chunks[0].Embedding)
	if dim == 0 {
		return errors.New("chunks have no embeddings")
	}
	if err := s.ensureSchema(ctx, dim); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (text, filename, chunk_index, chunk_type, embedding) VALUES ($1, $2, $3, $4, $5::vector)
ON CONFLICT (filename, chunk_index) DO UPDATE
SET text = EXCLUDED.text, chunk_type = EXCLUDED.chunk_type, embedding = EXCLUDED.embedding`,
		pq.QuoteIdentifier(s.table)))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return fmt.Errorf("chunk %s#%d: vector dimension %d, want %d", c.Filename, c.Index, len(c.Embedding), dim)
		}
		if _, err := stmt.ExecContext(ctx, c.Text, c.Filename, c.Index, string(c.Type), Literal(c.Embedding)); err != nil {
			return fmt.Errorf("failed to insert chunk %s#%d: %w", c.Filename, c.Index, classify(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", classify(err))
	}
	slog.Info("indexed chunks", "store", "pgvector", "table", s.table, "count", len(chunks))
	return nil
}

func (s *Store) ensureSchema(ctx context.Context, dim int) error {
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", classify(err))
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	text TEXT NOT NULL,
	filename TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	chunk_type TEXT NOT NULL,
	embedding vector(%d) NOT NULL
)`, pq.QuoteIdentifier(s.table), dim)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, classify(err))
	}
	key := fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (filename, chunk_index)`,
		pq.QuoteIdentifier(s.table+"_chunk_key"), pq.QuoteIdentifier(s.table))
	if _, err := s.db.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("failed to create chunk key on %s: %w", s.table, classify(err))
	}
	return nil
}

// Reset drops the chunk table.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, pq.QuoteIdentifier(s.table))); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", s.table, classify(err))
	}
	return nil
}

func (s *Store) Close() error {
	slog.Debug("pgvector store closed", "table", s.table)
	return s.db.Close()
}

// Literal renders a vector in pgvector's text input format, e.g. [0.1,0.2].
func Literal(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func topK(k int) int {
	if k <= 0 {
		return domain.DefaultTopK
	}
	return k
}

func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P01"
}

// classify maps driver failures onto the domain error taxonomy.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08":
			return fmt.Errorf("%w: %w", domain.ErrConnection, err)
		case "28":
			return fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}
	return err
}
