package openai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	goopenai "github.com/sashabaranov/go-openai"

	"syllabiq/internal/domain"
	"syllabiq/internal/provider"
)

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
// It serves OpenAI itself and Ollama's /v1 endpoint.
type Client struct {
	name   string
	model  string
	client *goopenai.Client

	mu        sync.RWMutex
	dimension int
}

var _ domain.Embedder = (*Client)(nil)

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	Provider    provider.Type
	Model       string
	BaseURL     string
	TimeoutSecs int
}

var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"all-minilm":             384,
	"mxbai-embed-large":      1024,
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Provider == "" {
		cfg.Provider = provider.OpenAI
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	clientCfg, err := provider.OpenAIConfig(cfg.Provider, cfg.BaseURL, cfg.TimeoutSecs)
	if err != nil {
		return nil, err
	}
	return NewClientWithConfig(string(cfg.Provider), cfg.Model, clientCfg), nil
}

// NewClientWithConfig wraps an explicit go-openai configuration.
func NewClientWithConfig(providerName, model string, clientCfg goopenai.ClientConfig) *Client {
	base, _, _ := strings.Cut(model, ":")
	return &Client{
		name:      providerName + ":" + model,
		model:     model,
		client:    goopenai.NewClientWithConfig(clientCfg),
		dimension: knownDimensions[base],
	}
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return c.name }

// Dimension returns the dimensionality of the produced embedding vectors.
// For unknown models it is zero until the first response arrives.
func (c *Client) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimension
}

// EmbedQuery returns an embedding vector for the given text.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments embeds all texts in a single request.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: texts,
		Model: goopenai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", provider.ClassifyOpenAIError(err))
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", domain.ErrMalformedResponse, len(texts), len(resp.Data))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: bad embedding at index %d", domain.ErrMalformedResponse, d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("%w: missing embedding %d", domain.ErrMalformedResponse, i)
		}
	}
	c.mu.Lock()
	if c.dimension == 0 {
		c.dimension = len(out[0])
	}
	c.mu.Unlock()
	return out, nil
}
