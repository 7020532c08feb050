// Package observe wires OpenTelemetry metrics for the ingestion pipeline.
package observe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/dictaflow"

// latencyBuckets covers everything from sub-second store calls up to
// multi-minute transcription batches.
var latencyBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// Metrics bundles the instruments recorded across pipeline stages.
type Metrics struct {
	StageDuration         metric.Float64Histogram
	TranscriptionDuration metric.Float64Histogram
	TranscriptionRequests metric.Int64Counter
	LLMRequestDuration    metric.Float64Histogram
	StoreRequests         metric.Int64Counter
	RecordsProcessed      metric.Int64Counter
	ActiveWorkers         metric.Int64UpDownCounter
}

// NewMetrics creates all pipeline instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	stageDuration, err := meter.Float64Histogram("dictaflow.stage.duration",
		metric.WithDescription("Wall-clock duration of a pipeline stage"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))
	if err != nil {
		return nil, fmt.Errorf("observe: create stage duration histogram: %w", err)
	}

	transcriptionDuration, err := meter.Float64Histogram("dictaflow.transcription.duration",
		metric.WithDescription("Duration of a single transcription request"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))
	if err != nil {
		return nil, fmt.Errorf("observe: create transcription duration histogram: %w", err)
	}

	transcriptionRequests, err := meter.Int64Counter("dictaflow.transcription.requests",
		metric.WithDescription("Transcription requests by backend and outcome"))
	if err != nil {
		return nil, fmt.Errorf("observe: create transcription request counter: %w", err)
	}

	llmRequestDuration, err := meter.Float64Histogram("dictaflow.llm.request.duration",
		metric.WithDescription("Duration of a language model completion"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))
	if err != nil {
		return nil, fmt.Errorf("observe: create llm duration histogram: %w", err)
	}

	storeRequests, err := meter.Int64Counter("dictaflow.store.requests",
		metric.WithDescription("Document store requests by operation and outcome"))
	if err != nil {
		return nil, fmt.Errorf("observe: create store request counter: %w", err)
	}

	recordsProcessed, err := meter.Int64Counter("dictaflow.records.processed",
		metric.WithDescription("Records produced by analysis, by category"))
	if err != nil {
		return nil, fmt.Errorf("observe: create record counter: %w", err)
	}

	activeWorkers, err := meter.Int64UpDownCounter("dictaflow.transcription.workers",
		metric.WithDescription("Transcription workers currently running"))
	if err != nil {
		return nil, fmt.Errorf("observe: create worker gauge: %w", err)
	}

	return &Metrics{
		StageDuration:         stageDuration,
		TranscriptionDuration: transcriptionDuration,
		TranscriptionRequests: transcriptionRequests,
		LLMRequestDuration:    llmRequestDuration,
		StoreRequests:         storeRequests,
		RecordsProcessed:      recordsProcessed,
		ActiveWorkers:         activeWorkers,
	}, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns instruments bound to the global meter provider.
// InitProvider must run first or the instruments are no-ops.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			m = &Metrics{}
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// Attr is shorthand for a string attribute.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records the duration of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, elapsed time.Duration) {
	if m.StageDuration == nil {
		return
	}
	m.StageDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(Attr("stage", stage)))
}

// RecordTranscription records one transcription attempt against a backend.
func (m *Metrics) RecordTranscription(ctx context.Context, backend, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(Attr("backend", backend), Attr("status", status))
	if m.TranscriptionRequests != nil {
		m.TranscriptionRequests.Add(ctx, 1, attrs)
	}
	if m.TranscriptionDuration != nil {
		m.TranscriptionDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(Attr("backend", backend)))
	}
}

// RecordLLMRequest records the duration of one language model completion.
func (m *Metrics) RecordLLMRequest(ctx context.Context, operation string, elapsed time.Duration) {
	if m.LLMRequestDuration == nil {
		return
	}
	m.LLMRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(Attr("operation", operation)))
}

// AddWorkers adjusts the running-worker gauge by delta.
func (m *Metrics) AddWorkers(ctx context.Context, delta int64) {
	if m.ActiveWorkers == nil {
		return
	}
	m.ActiveWorkers.Add(ctx, delta)
}

// RecordStoreRequest records one document store call.
func (m *Metrics) RecordStoreRequest(ctx context.Context, operation, status string) {
	if m.StoreRequests == nil {
		return
	}
	m.StoreRequests.Add(ctx, 1, metric.WithAttributes(Attr("operation", operation), Attr("status", status)))
}

// RecordEntry counts one analyzed record by category.
func (m *Metrics) RecordEntry(ctx context.Context, category string) {
	if m.RecordsProcessed == nil {
		return
	}
	m.RecordsProcessed.Add(ctx, 1, metric.WithAttributes(Attr("category", category)))
}
