package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syllabiq/internal/domain"
	"syllabiq/internal/embedding/local"
)

func indexTexts(t *testing.T, s *Storage, e domain.Embedder, texts ...string) {
	t.Helper()
	vecs, err := e.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{Text: text, Filename: "net.md", Index: i, Type: domain.ChunkParagraph, Embedding: vecs[i]}
	}
	require.NoError(t, s.Index(context.Background(), chunks))
}

func TestStorage_ExactMatchRanksFirst(t *testing.T) {
	e := local.NewEmbedder(256)
	s := NewStorage(e, 10)
	indexTexts(t, s, e,
		"Paging divides memory into fixed-size frames",
		"TCP uses a three-way handshake",
		"Deadlock requires mutual exclusion and circular wait",
	)

	res, err := s.Search(context.Background(), "TCP uses a three-way handshake")
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "TCP uses a three-way handshake", res[0].Chunk.Text)
	for _, r := range res[1:] {
		assert.GreaterOrEqual(t, res[0].Score, r.Score)
	}
}

func TestStorage_CapsAtTopK(t *testing.T) {
	e := local.NewEmbedder(64)
	s := NewStorage(e, 0)
	texts := make([]string, 25)
	for i := range texts {
		texts[i] = fmt.Sprintf("lecture note number %d about scheduling", i)
	}
	indexTexts(t, s, e, texts...)

	res, err := s.Search(context.Background(), "scheduling")
	require.NoError(t, err)
	assert.Len(t, res, domain.DefaultTopK)
}

func TestStorage_EmptyCorpusAndQuery(t *testing.T) {
	s := NewStorage(local.NewEmbedder(32), 10)

	res, err := s.Search(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, res)

	_, err = s.Search(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
}

func TestStorage_Reset(t *testing.T) {
	e := local.NewEmbedder(32)
	s := NewStorage(e, 10)
	indexTexts(t, s, e, "alpha beta")
	require.NoError(t, s.Reset(context.Background()))

	res, err := s.Search(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestStorage_StopwordQueryFindsNothing(t *testing.T) {
	e := local.NewEmbedder(256)
	s := NewStorage(e, 10)
	indexTexts(t, s, e,
		"Paging divides memory into fixed-size frames",
		"TCP uses a three-way handshake",
	)

	res, err := s.Search(context.Background(), "what is it?")
	require.NoError(t, err)
	assert.Empty(t, res)
}
