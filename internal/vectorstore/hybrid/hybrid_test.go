package hybrid

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syllabiq/internal/config"
	"syllabiq/internal/domain"
	"syllabiq/internal/embedding/local"
)

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(&config.HybridConfig{Path: dir, RRFConstant: 60}, "engineering_notes", local.NewEmbedder(256), 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func index(t *testing.T, s *Store, texts ...string) {
	t.Helper()
	vecs, err := s.embedder.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{Text: text, Filename: "cn.md", Index: i, Type: domain.ChunkParagraph, Embedding: vecs[i]}
	}
	require.NoError(t, s.Index(context.Background(), chunks))
}

func TestStore_HybridSearch(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	index(t, s,
		"Paging divides memory into fixed-size frames",
		"TCP uses a three-way handshake",
		"Deadlock requires mutual exclusion and circular wait",
	)

	res, err := s.Search(context.Background(), "TCP uses a three-way handshake")
	require.NoError(t, err)
	require.NotEmpty(t, res)

	top := res[0]
	assert.Equal(t, "TCP uses a three-way handshake", top.Chunk.Text)
	assert.Equal(t, "cn.md", top.Chunk.Filename)
	assert.Equal(t, 1, top.Chunk.Index)
	assert.Equal(t, domain.ChunkParagraph, top.Chunk.Type)
	// Found by both legs at rank 0.
	assert.InDelta(t, 2.0/60, top.Score, 1e-9)
}

func TestStore_EmptyCorpus(t *testing.T) {
	s := openTestStore(t, t.TempDir())

	res, err := s.Search(context.Background(), "anything at all")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestStore_CapsAtTopK(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	texts := make([]string, 30)
	for i := range texts {
		texts[i] = fmt.Sprintf("scheduling note %d covers round robin scheduling", i)
	}
	index(t, s, texts...)

	res, err := s.Search(context.Background(), "round robin scheduling")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res), domain.DefaultTopK)
	assert.NotEmpty(t, res)
}

func TestStore_PersistsAndResets(t *testing.T) {
	dir := t.TempDir()
	first, err := Open(&config.HybridConfig{Path: dir, RRFConstant: 60}, "engineering_notes", local.NewEmbedder(256), 10)
	require.NoError(t, err)
	index(t, first, "Dijkstra computes shortest paths")
	require.NoError(t, first.Close())

	s := openTestStore(t, dir)
	res, err := s.Search(context.Background(), "shortest paths")
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "Dijkstra computes shortest paths", res[0].Chunk.Text)

	require.NoError(t, s.Reset(context.Background()))
	res, err = s.Search(context.Background(), "shortest paths")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestStore_EmptyQuery(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	_, err := s.Search(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
}

func TestStore_StopwordQueryFindsNothing(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	index(t, s,
		"Paging divides memory into fixed-size frames",
		"TCP uses a three-way handshake",
		"Deadlock requires mutual exclusion and circular wait",
	)

	res, err := s.Search(context.Background(), "what is it?")
	require.NoError(t, err)
	assert.Empty(t, res)
}
