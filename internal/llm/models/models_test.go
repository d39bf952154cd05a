package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syllabiq/internal/config"
)

func TestNew(t *testing.T) {
	for _, name := range []string{
		"groq:llama-3.1-8b-instant",
		"ollama:llama3.2:3b",
		"gemini:gemini-2.5-flash-lite",
		"gpt-4o-mini",
	} {
		t.Run(name, func(t *testing.T) {
			m, err := New(config.AIConfig{ModelName: name})
			require.NoError(t, err)
			assert.NotEmpty(t, m.Name())
		})
	}

	_, err := New(config.AIConfig{ModelName: "mystery-model"})
	assert.Error(t, err)
}
