package domain

import "sort"

// DefaultTopK is the number of chunks a retrieval returns at most.
const DefaultTopK = 10

// SortResults orders results by descending score, breaking ties by chunk
// position and then filename so every backend returns the same order.
func SortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.Index != b.Chunk.Index {
			return a.Chunk.Index < b.Chunk.Index
		}
		return a.Chunk.Filename < b.Chunk.Filename
	})
}

// Truncate caps results at k entries. Non-positive k means DefaultTopK.
func Truncate(results []SearchResult, k int) []SearchResult {
	if k <= 0 {
		k = DefaultTopK
	}
	if len(results) > k {
		return results[:k]
	}
	return results
}

// IsZeroVector reports whether v has no direction to rank by, as with a query
// made only of stopwords.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
