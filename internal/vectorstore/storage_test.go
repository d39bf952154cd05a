package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syllabiq/internal/config"
	"syllabiq/internal/embedding/local"
)

func TestOpen(t *testing.T) {
	e := local.NewEmbedder(32)

	s, err := Open(context.Background(), config.VectorStoreConfig{Type: "memory"}, e, 10)
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Name())

	s, err = Open(context.Background(), config.VectorStoreConfig{
		Type:   "hybrid",
		Table:  "engineering_notes",
		Hybrid: &config.HybridConfig{Path: t.TempDir(), RRFConstant: 60},
	}, e, 10)
	require.NoError(t, err)
	assert.Equal(t, "hybrid", s.Name())
	assert.NoError(t, s.Close())

	_, err = Open(context.Background(), config.VectorStoreConfig{Type: "lance"}, e, 10)
	assert.Error(t, err)
}

func TestPool_SharesEmbeddedStores(t *testing.T) {
	pool := NewPool(config.VectorStoreConfig{
		Type:   "hybrid",
		Table:  "engineering_notes",
		Hybrid: &config.HybridConfig{Path: t.TempDir(), RRFConstant: 60},
	}, local.NewEmbedder(32), 10)

	a, err := pool.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.Close())

	// A second session still works after the first closed its handle.
	b, err := pool.Open(context.Background())
	require.NoError(t, err)
	_, err = b.Search(context.Background(), "paging")
	require.NoError(t, err)
	assert.Same(t, a.(borrowed).Store, b.(borrowed).Store)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())
}
