// Package vectorstore opens the configured chunk store.
package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"syllabiq/internal/config"
	"syllabiq/internal/domain"
	"syllabiq/internal/vectorstore/hybrid"
	"syllabiq/internal/vectorstore/memory"
	"syllabiq/internal/vectorstore/pgvector"
	"syllabiq/internal/vectorstore/qdrant"
)

// Open builds the store selected by cfg.Type. The caller owns the handle and must Close it.
func Open(ctx context.Context, cfg config.VectorStoreConfig, embedder domain.Embedder, topK int) (domain.Store, error) {
	var (
		store domain.Store
		err   error
	)
	switch cfg.Type {
	case "pgvector":
		store, err = nonNil(pgvector.Open(ctx, cfg.Postgres, cfg.Table, embedder, topK))
	case "hybrid":
		store, err = nonNil(hybrid.Open(cfg.Hybrid, cfg.Table, embedder, topK))
	case "qdrant":
		store, err = nonNil(qdrant.NewStorage(cfg.Qdrant, cfg.Table, embedder, topK))
	case "memory":
		store = memory.NewStorage(embedder, topK)
	default:
		err = fmt.Errorf("unknown vector store: %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// nonNil keeps a failed constructor's typed nil out of the interface.
func nonNil[T domain.Store](s T, err error) (domain.Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Pool hands out store handles. Embedded stores (memory, hybrid) can only be
// opened once per process, so every handle shares one store that is closed by
// Pool.Close. Network stores get a fresh connection per handle.
type Pool struct {
	cfg      config.VectorStoreConfig
	embedder domain.Embedder
	topK     int

	mu     sync.Mutex
	shared domain.Store
}

func NewPool(cfg config.VectorStoreConfig, embedder domain.Embedder, topK int) *Pool {
	return &Pool{cfg: cfg, embedder: embedder, topK: topK}
}

// Open returns a handle the caller must Close.
func (p *Pool) Open(ctx context.Context) (domain.Store, error) {
	switch p.cfg.Type {
	case "memory", "hybrid":
	default:
		return Open(ctx, p.cfg, p.embedder, p.topK)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shared == nil {
		store, err := Open(ctx, p.cfg, p.embedder, p.topK)
		if err != nil {
			return nil, err
		}
		p.shared = store
	}
	return borrowed{p.shared}, nil
}

// Close releases the shared store, if one was opened.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shared == nil {
		return nil
	}
	err := p.shared.Close()
	p.shared = nil
	return err
}

// borrowed is a shared store whose Close leaves the store open.
type borrowed struct {
	domain.Store
}

func (borrowed) Close() error { return nil }
