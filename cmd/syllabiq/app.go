package main

import (
	"fmt"

	"syllabiq/internal/agent"
	"syllabiq/internal/chunker"
	"syllabiq/internal/config"
	"syllabiq/internal/domain"
	"syllabiq/internal/embedding"
	"syllabiq/internal/llm"
	"syllabiq/internal/llm/models"
	"syllabiq/internal/metrics"
	"syllabiq/internal/retrieval"
	"syllabiq/internal/service"
	"syllabiq/internal/summarizer"
	"syllabiq/internal/tokens"
	"syllabiq/internal/vectorstore"
)

// app holds the components shared by every command that talks to the store.
type app struct {
	cfg      *config.AppConfig
	embedder domain.Embedder
	stores   *vectorstore.Pool
	model    llm.Model
	metrics  *metrics.Recorder
}

func newApp(cfg *config.AppConfig) (*app, error) {
	embedder, err := embedding.New(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &app{
		cfg:      cfg,
		embedder: embedder,
		stores:   vectorstore.NewPool(cfg.VectorStore, embedder, cfg.Retrieval.TopK),
	}, nil
}

// withModel creates the chat model. Ingestion does not need one.
func (a *app) withModel() error {
	model, err := models.New(a.cfg.AI)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}
	a.model = model
	return nil
}

// responder binds a responder to a store handle.
func (a *app) responder(store domain.VectorStore) *agent.Agent {
	return agent.New(a.model,
		retrieval.New(store, a.cfg.Retrieval.TopK),
		agent.ConfigFrom(a.cfg),
		agent.WithMetrics(a.metrics))
}

func (a *app) ingestor(store domain.Indexer) (*service.Ingestor, error) {
	counter := tokens.NewCounterOrWords(a.cfg.Chunker.Encoding)
	ch, err := chunker.New(a.cfg.Chunker, counter)
	if err != nil {
		return nil, err
	}
	sum, err := summarizer.New(a.cfg.Summarizer)
	if err != nil {
		return nil, err
	}
	return service.NewIngestor(ch, a.embedder, store, sum, a.cfg.Summarizer.MaxSentences, a.cfg.Chunker.BatchSize), nil
}

func (a *app) Close() error {
	return a.stores.Close()
}
