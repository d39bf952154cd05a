// Package models builds the configured chat model.
package models

import (
	"fmt"

	"syllabiq/internal/config"
	"syllabiq/internal/llm"
	"syllabiq/internal/llm/gemini"
	"syllabiq/internal/llm/openai"
	"syllabiq/internal/provider"
)

// New resolves ai.model_name ("provider:model") to a Model.
func New(cfg config.AIConfig) (llm.Model, error) {
	id, err := provider.Parse(cfg.ModelName)
	if err != nil {
		return nil, fmt.Errorf("model_name: %w", err)
	}
	switch id.Provider {
	case provider.Gemini:
		return gemini.New(id.Model, provider.NewGeminiClient(cfg.TimeoutSecs)), nil
	case provider.OpenAI, provider.Groq, provider.Ollama:
		m, err := openai.New(id, cfg.BaseURL, cfg.TimeoutSecs)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("unsupported provider %q", id.Provider)
}
