// Package chunker splits loaded documents into retrieval chunks.
package chunker

import (
	"fmt"

	"syllabiq/internal/config"
	"syllabiq/internal/domain"
)

// New returns the chunker selected by cfg.Type.
func New(cfg config.ChunkerConfig, counter Counter) (domain.Chunker, error) {
	switch cfg.Type {
	case "", "hybrid":
		return NewHybridChunker(cfg.MaxTokens, counter), nil
	case "sentence":
		return NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %q", cfg.Type)
	}
}
