package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortResults_TieBreakByIndexThenFilename(t *testing.T) {
	results := []SearchResult{
		{Chunk: Chunk{Filename: "b.md", Index: 2}, Score: 0.5},
		{Chunk: Chunk{Filename: "a.md", Index: 3}, Score: 0.9},
		{Chunk: Chunk{Filename: "b.md", Index: 1}, Score: 0.5},
		{Chunk: Chunk{Filename: "a.md", Index: 1}, Score: 0.5},
	}

	SortResults(results)

	assert.Equal(t, 0.9, results[0].Score)
	assert.Equal(t, "a.md", results[1].Chunk.Filename)
	assert.Equal(t, 1, results[1].Chunk.Index)
	assert.Equal(t, "b.md", results[2].Chunk.Filename)
	assert.Equal(t, 1, results[2].Chunk.Index)
	assert.Equal(t, 2, results[3].Chunk.Index)
}

func TestTruncate(t *testing.T) {
	many := make([]SearchResult, 25)

	t.Run("caps at default K", func(t *testing.T) {
		assert.Len(t, Truncate(many, 0), DefaultTopK)
	})

	t.Run("caps at explicit K", func(t *testing.T) {
		assert.Len(t, Truncate(many, 3), 3)
	})

	t.Run("keeps shorter slices", func(t *testing.T) {
		assert.Len(t, Truncate(many[:4], 10), 4)
	})
}

func TestIsZeroVector(t *testing.T) {
	assert.True(t, IsZeroVector(nil))
	assert.True(t, IsZeroVector([]float32{0, 0, 0}))
	assert.False(t, IsZeroVector([]float32{0, 0.1, 0}))
}
