package provider

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"syllabiq/internal/domain"
)

const (
	groqBaseURL   = "https://api.groq.com/openai/v1"
	ollamaBaseURL = "http://localhost:11434/v1"
)

// OpenAIConfig builds a go-openai client configuration for any of the
// OpenAI-compatible providers. baseURL overrides the provider default.
// A missing API key is not an error here; the provider rejects the call.
func OpenAIConfig(p Type, baseURL string, timeoutSecs int) (openai.ClientConfig, error) {
	var cfg openai.ClientConfig
	switch p {
	case OpenAI:
		cfg = openai.DefaultConfig(os.Getenv("OPENAI_API_KEY"))
	case Groq:
		cfg = openai.DefaultConfig(os.Getenv("GROQ_API_KEY"))
		cfg.BaseURL = groqBaseURL
	case Ollama:
		cfg = openai.DefaultConfig("ollama")
		if host := os.Getenv("OLLAMA_HOST"); host != "" {
			cfg.BaseURL = host + "/v1"
		} else {
			cfg.BaseURL = ollamaBaseURL
		}
	default:
		return cfg, fmt.Errorf("provider %q is not OpenAI-compatible", p)
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeoutSecs > 0 {
		cfg.HTTPClient = &http.Client{Timeout: secs(timeoutSecs)}
	}
	return cfg, nil
}

// ClassifyOpenAIError wraps go-openai failures with the matching domain sentinel.
func ClassifyOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, err)
	}
	return classifyTransport(err)
}

func classifyStatus(status int, err error) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
	case status >= 500 || status == 0:
		return fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}
	return err
}

func classifyTransport(err error) error {
	var netErr net.Error
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}
	return err
}
