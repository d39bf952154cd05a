// Package metrics records responder and retrieval instruments through
// OpenTelemetry and exposes them in Prometheus text format.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Recorder is safe to use as a nil pointer; every method is then a no-op.
type Recorder struct {
	registry *promclient.Registry
	provider *sdkmetric.MeterProvider

	turnDuration   metric.Float64Histogram
	turnsTotal     metric.Int64Counter
	searchDuration metric.Float64Histogram
	searchesTotal  metric.Int64Counter
	llmDuration    metric.Float64Histogram
	llmErrorsTotal metric.Int64Counter
}

// New creates a recorder backed by its own Prometheus registry.
func New() (*Recorder, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("syllabiq")

	r := &Recorder{registry: registry, provider: provider}
	if r.turnDuration, err = meter.Float64Histogram("syllabiq_turn_duration_seconds",
		metric.WithDescription("Responder turn duration in seconds")); err != nil {
		return nil, fmt.Errorf("failed to create turn duration histogram: %w", err)
	}
	if r.turnsTotal, err = meter.Int64Counter("syllabiq_turns_total",
		metric.WithDescription("Responder turns by outcome")); err != nil {
		return nil, fmt.Errorf("failed to create turns counter: %w", err)
	}
	if r.searchDuration, err = meter.Float64Histogram("syllabiq_search_duration_seconds",
		metric.WithDescription("Knowledge base search duration in seconds")); err != nil {
		return nil, fmt.Errorf("failed to create search duration histogram: %w", err)
	}
	if r.searchesTotal, err = meter.Int64Counter("syllabiq_searches_total",
		metric.WithDescription("Knowledge base searches by result")); err != nil {
		return nil, fmt.Errorf("failed to create searches counter: %w", err)
	}
	if r.llmDuration, err = meter.Float64Histogram("syllabiq_llm_request_duration_seconds",
		metric.WithDescription("Model request duration in seconds")); err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}
	if r.llmErrorsTotal, err = meter.Int64Counter("syllabiq_llm_errors_total",
		metric.WithDescription("Failed model requests")); err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}
	return r, nil
}

// RecordTurn records one responder turn. outcome is answered, declined or error.
func (r *Recorder) RecordTurn(ctx context.Context, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	r.turnDuration.Record(ctx, d.Seconds(), attrs)
	r.turnsTotal.Add(ctx, 1, attrs)
}

// RecordSearch records one tool search and whether it found any context.
func (r *Recorder) RecordSearch(ctx context.Context, found bool, d time.Duration) {
	if r == nil {
		return
	}
	result := "empty"
	if found {
		result = "hit"
	}
	attrs := metric.WithAttributes(attribute.String("result", result))
	r.searchDuration.Record(ctx, d.Seconds(), attrs)
	r.searchesTotal.Add(ctx, 1, attrs)
}

// RecordLLMCall records one model request.
func (r *Recorder) RecordLLMCall(ctx context.Context, model string, d time.Duration, err error) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))
	r.llmDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		r.llmErrorsTotal.Add(ctx, 1, attrs)
	}
}

// Handler serves the registry in Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}
