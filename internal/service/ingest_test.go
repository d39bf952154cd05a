package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syllabiq/internal/chunker"
	"syllabiq/internal/domain"
	"syllabiq/internal/embedding/local"
	"syllabiq/internal/summarizer"
	"syllabiq/internal/tokens"
	"syllabiq/internal/vectorstore/memory"
)

func writeNotes(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cn.md"), []byte("# Networks\n\nTCP uses a three-way handshake.\n\n# Routing\n\nOSPF is a link state protocol."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "os.txt"), []byte("Paging divides memory into frames."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.docx"), []byte("ignored"), 0o644))
	return dir
}

func TestIngest_IndexesAndSearches(t *testing.T) {
	dir := writeNotes(t)
	embedder := local.NewEmbedder(256)
	store := memory.NewStorage(embedder, 10)
	ing := NewIngestor(chunker.NewHybridChunker(64, tokens.Words()), embedder, store, summarizer.NewFrequencySummarizer(), 2, 1)

	report, err := ing.Ingest(context.Background(), []string{filepath.Join(dir, "*")}, false)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Chunks)
	require.Len(t, report.Files, 2)
	assert.NotEmpty(t, report.Summary)

	results, err := store.Search(context.Background(), "Networks\nTCP uses a three-way handshake.")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "cn.md", results[0].Chunk.Filename)
	assert.Equal(t, 0, results[0].Chunk.Index)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)

	// Re-ingesting with reset does not duplicate chunks.
	_, err = ing.Ingest(context.Background(), []string{filepath.Join(dir, "*")}, true)
	require.NoError(t, err)
	results, err = store.Search(context.Background(), "paging")
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestIngest_NoDocuments(t *testing.T) {
	dir := t.TempDir()
	embedder := local.NewEmbedder(0)
	ing := NewIngestor(chunker.NewSentenceChunker(0, 0), embedder, memory.NewStorage(embedder, 10), nil, 0, 0)
	_, err := ing.Ingest(context.Background(), []string{filepath.Join(dir, "*.pdf")}, false)
	assert.ErrorIs(t, err, ErrNoDocuments)
}

type failingEmbedder struct{ domain.Embedder }

func (failingEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, domain.ErrAuthentication
}

func TestIngest_EmbeddingFailureLeavesStoreUntouched(t *testing.T) {
	dir := writeNotes(t)
	store := memory.NewStorage(local.NewEmbedder(0), 10)
	ing := NewIngestor(chunker.NewSentenceChunker(0, 0), failingEmbedder{}, store, nil, 0, 0)

	_, err := ing.Ingest(context.Background(), []string{filepath.Join(dir, "os.txt")}, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAuthentication))

	results, err := store.Search(context.Background(), "paging")
	require.NoError(t, err)
	assert.Empty(t, results)
}
