// Package embedding constructs the configured Embedder.
package embedding

import (
	"fmt"
	"strconv"
	"strings"

	"syllabiq/internal/config"
	"syllabiq/internal/domain"
	"syllabiq/internal/embedding/gemini"
	"syllabiq/internal/embedding/local"
	"syllabiq/internal/embedding/openai"
	"syllabiq/internal/provider"
)

// New builds an Embedder from ai.embedding_model. "local" or "local:<dim>"
// selects the offline hashing embedder.
func New(cfg config.AIConfig) (domain.Embedder, error) {
	if name, dim, ok := strings.Cut(cfg.EmbeddingModel, ":"); name == "local" {
		n := 0
		if ok {
			var err error
			if n, err = strconv.Atoi(dim); err != nil {
				return nil, fmt.Errorf("invalid local embedding dimension %q", dim)
			}
		}
		return local.NewEmbedder(n), nil
	}

	id, err := provider.Parse(cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("embedding_model: %w", err)
	}
	switch id.Provider {
	case provider.Gemini:
		return gemini.NewEmbedder(id.Model, provider.NewGeminiClient(cfg.TimeoutSecs)), nil
	case provider.OpenAI, provider.Ollama:
		return openai.NewClient(openai.Config{
			Provider:    id.Provider,
			Model:       id.Model,
			BaseURL:     cfg.EmbeddingBaseURL,
			TimeoutSecs: cfg.TimeoutSecs,
		})
	default:
		return nil, fmt.Errorf("provider %q does not serve embeddings", id.Provider)
	}
}
