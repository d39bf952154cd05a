// Package service ingests documents into a vector store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"syllabiq/internal/domain"
	"syllabiq/internal/loader"
)

// ErrNoDocuments is returned when no path names a supported file.
var ErrNoDocuments = errors.New("no supported documents found")

const embedWorkers = 4

// FileReport describes one ingested file.
type FileReport struct {
	Filename string
	Pages    int
	Chunks   int
}

// Report is the outcome of an ingestion run.
type Report struct {
	Files    []FileReport
	Chunks   int
	Summary  string
	Duration time.Duration
}

type Ingestor struct {
	chunker             domain.Chunker
	embedder            domain.Embedder
	store               domain.Indexer
	summarizer          domain.Summarizer
	summaryMaxSentences int
	batchSize           int
}

func NewIngestor(chunker domain.Chunker, embedder domain.Embedder, store domain.Indexer, summarizer domain.Summarizer, summaryMaxSentences, batchSize int) *Ingestor {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Ingestor{
		chunker:             chunker,
		embedder:            embedder,
		store:               store,
		summarizer:          summarizer,
		summaryMaxSentences: summaryMaxSentences,
		batchSize:           batchSize,
	}
}

// Ingest loads, chunks, embeds and indexes every supported file matched by
// paths (glob patterns are expanded). When reset is set the store is emptied
// first. The summary is empty when no summarizer is configured.
func (s *Ingestor) Ingest(ctx context.Context, paths []string, reset bool) (*Report, error) {
	start := time.Now()
	var documents []domain.Document
	for _, p := range expand(paths) {
		if !loader.Supported(p) {
			slog.Warn("skipping unsupported file", "path", p)
			continue
		}
		doc, err := loader.Load(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", p, err)
		}
		documents = append(documents, doc)
	}
	if len(documents) == 0 {
		return nil, ErrNoDocuments
	}

	report := &Report{}
	var all []domain.Chunk
	var corpus strings.Builder
	for _, d := range documents {
		chunks, err := s.chunker.Chunk(d)
		if err != nil {
			return nil, fmt.Errorf("failed to chunk %s: %w", d.Filename, err)
		}
		all = append(all, chunks...)
		report.Files = append(report.Files, FileReport{Filename: d.Filename, Pages: len(d.Pages), Chunks: len(chunks)})
		corpus.WriteString("\n")
		corpus.WriteString(d.Content)
		slog.Info("chunked document", "file", d.Filename, "pages", len(d.Pages), "chunks", len(chunks))
	}

	if err := s.embed(ctx, all); err != nil {
		return nil, err
	}
	if reset {
		if err := s.store.Reset(ctx); err != nil {
			return nil, fmt.Errorf("failed to reset store: %w", err)
		}
	}
	if err := s.store.Index(ctx, all); err != nil {
		return nil, fmt.Errorf("failed to index chunks: %w", err)
	}
	report.Chunks = len(all)

	if s.summarizer != nil {
		summary, err := s.summarizer.Summarize(corpus.String(), s.summaryMaxSentences)
		if err != nil {
			return nil, fmt.Errorf("failed to summarize: %w", err)
		}
		report.Summary = summary
	}
	report.Duration = time.Since(start)
	slog.Info("ingestion complete", "files", len(report.Files), "chunks", report.Chunks, "duration", report.Duration)
	return report, nil
}

// embed fills in chunk embeddings, a batch per request, with a bounded
// number of requests in flight.
func (s *Ingestor) embed(ctx context.Context, chunks []domain.Chunk) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedWorkers)
	for lo := 0; lo < len(chunks); lo += s.batchSize {
		hi := min(lo+s.batchSize, len(chunks))
		batch := chunks[lo:hi]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}
			vectors, err := s.embedder.EmbedDocuments(ctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed chunks %d-%d: %w", lo, hi-1, err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("%w: got %d embeddings for %d chunks", domain.ErrMalformedResponse, len(vectors), len(batch))
			}
			for i := range batch {
				batch[i].Embedding = vectors[i]
			}
			return nil
		})
	}
	return g.Wait()
}

func expand(paths []string) []string {
	var out []string
	for _, p := range paths {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		out = append(out, matches...)
	}
	return out
}
