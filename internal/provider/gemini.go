package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"google.golang.org/genai"

	"syllabiq/internal/domain"
)

// GeminiClient creates the genai client on first use so that a missing
// GEMINI_API_KEY only surfaces when a request is actually made.
type GeminiClient struct {
	timeout time.Duration

	once   sync.Once
	client *genai.Client
	err    error
}

// NewGeminiClient returns a lazily initialised Gemini API client.
func NewGeminiClient(timeoutSecs int) *GeminiClient {
	return &GeminiClient{timeout: secs(timeoutSecs)}
}

// Get returns the underlying client, creating it on the first call.
func (g *GeminiClient) Get(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		key := os.Getenv("GEMINI_API_KEY")
		if key == "" {
			key = os.Getenv("GOOGLE_API_KEY")
		}
		if key == "" {
			g.err = fmt.Errorf("%w: GEMINI_API_KEY is not set", domain.ErrAuthentication)
			return
		}
		cfg := &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI}
		if g.timeout > 0 {
			cfg.HTTPClient = &http.Client{Timeout: g.timeout}
		}
		g.client, g.err = genai.NewClient(ctx, cfg)
		if g.err != nil {
			g.err = fmt.Errorf("failed to create Gemini client: %w", g.err)
		}
	})
	return g.client, g.err
}

// ClassifyGeminiError wraps genai failures with the matching domain sentinel.
func ClassifyGeminiError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return classifyStatus(apiErrPtr.Code, err)
	}
	return classifyTransport(err)
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }
