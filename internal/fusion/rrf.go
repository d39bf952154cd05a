// Package fusion merges ranked result lists.
package fusion

import "syllabiq/internal/domain"

// DefaultK is the RRF smoothing constant.
const DefaultK = 60

type key struct {
	filename string
	index    int
}

// ReciprocalRankFusion scores every chunk by the sum over the input lists of
// 1/(rank+k), with rank counted from zero, and returns the union ordered by
// that score. A chunk is identified by filename and chunk index; its payload
// is taken from the first list it appears in. Non-positive k uses DefaultK.
func ReciprocalRankFusion(k int, lists ...[]domain.SearchResult) []domain.SearchResult {
	if k <= 0 {
		k = DefaultK
	}
	scores := make(map[key]float64)
	chunks := make(map[key]domain.Chunk)
	var order []key
	for _, list := range lists {
		for rank, r := range list {
			id := key{r.Chunk.Filename, r.Chunk.Index}
			if _, seen := chunks[id]; !seen {
				chunks[id] = r.Chunk
				order = append(order, id)
			}
			scores[id] += 1.0 / float64(rank+k)
		}
	}
	out := make([]domain.SearchResult, 0, len(order))
	for _, id := range order {
		out = append(out, domain.SearchResult{Chunk: chunks[id], Score: scores[id]})
	}
	domain.SortResults(out)
	return out
}
