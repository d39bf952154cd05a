// Package provider resolves "provider:model" identifiers into SDK clients
// and maps provider failures onto the domain error taxonomy.
package provider

import (
	"fmt"
	"strings"
)

// Type identifies a model provider.
type Type string

const (
	Gemini Type = "gemini"
	OpenAI Type = "openai"
	Groq   Type = "groq"
	Ollama Type = "ollama"
)

// ID is a parsed "provider:model" identifier.
type ID struct {
	Provider Type
	Model    string
}

func (id ID) String() string { return string(id.Provider) + ":" + id.Model }

// Parse splits an identifier on its first colon, so "ollama:llama3.2:3b" keeps
// the tag in the model name. Identifiers without a known prefix are inferred
// from the model name.
func Parse(identifier string) (ID, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return ID{}, fmt.Errorf("empty model identifier")
	}
	if prefix, model, ok := strings.Cut(identifier, ":"); ok {
		switch p := Type(strings.ToLower(prefix)); p {
		case Gemini, OpenAI, Groq, Ollama:
			if model == "" {
				return ID{}, fmt.Errorf("model identifier %q has no model name", identifier)
			}
			return ID{Provider: p, Model: model}, nil
		case "google", "google-gla":
			return ID{Provider: Gemini, Model: model}, nil
		}
	}
	lower := strings.ToLower(identifier)
	switch {
	case strings.HasPrefix(lower, "gemini"), strings.HasPrefix(lower, "text-embedding-00"):
		return ID{Provider: Gemini, Model: identifier}, nil
	case strings.HasPrefix(lower, "gpt"), strings.HasPrefix(lower, "o1"), strings.HasPrefix(lower, "o3"),
		strings.HasPrefix(lower, "text-embedding-3"), strings.HasPrefix(lower, "text-embedding-ada"):
		return ID{Provider: OpenAI, Model: identifier}, nil
	}
	return ID{}, fmt.Errorf("cannot infer provider for model %q (use provider:model)", identifier)
}
