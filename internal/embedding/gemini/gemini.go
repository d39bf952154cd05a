// Package gemini embeds text with the Gemini embedding models.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"syllabiq/internal/domain"
	"syllabiq/internal/provider"
)

const (
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// Embedder calls Models.EmbedContent with retrieval task types.
type Embedder struct {
	model  string
	client *provider.GeminiClient
}

var _ domain.Embedder = (*Embedder)(nil)

// NewEmbedder creates an embedder for the given model (e.g. text-embedding-004).
func NewEmbedder(model string, client *provider.GeminiClient) *Embedder {
	if model == "" {
		model = "text-embedding-004"
	}
	return &Embedder{model: model, client: client}
}

func (e *Embedder) Name() string { return "gemini:" + e.model }

func (e *Embedder) Dimension() int {
	switch e.model {
	case "gemini-embedding-001":
		return 3072
	default:
		return 768
	}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts, taskRetrievalDocument)
}

func (e *Embedder) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	client, err := e.client.Get(ctx)
	if err != nil {
		return nil, err
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	resp, err := client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{TaskType: task})
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", provider.ClassifyGeminiError(err))
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings", domain.ErrMalformedResponse, len(texts))
	}
	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding %d", domain.ErrMalformedResponse, i)
		}
		out[i] = emb.Values
	}
	return out, nil
}
