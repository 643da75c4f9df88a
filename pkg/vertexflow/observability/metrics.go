package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records engine metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordVertexBuild records one vertex build with its duration and error
	// status.
	RecordVertexBuild(ctx context.Context, kind string, duration time.Duration, err error)

	// RecordRun records a completed run.
	RecordRun(ctx context.Context, success bool, duration time.Duration)

	// RecordQueueDepth records the run queue length at a dispatch step.
	RecordQueueDepth(ctx context.Context, depth int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	vertexBuilds  metric.Int64Counter
	vertexLatency metric.Float64Histogram
	vertexErrors  metric.Int64Counter
	runs          metric.Int64Counter
	runLatency    metric.Float64Histogram
	queueDepth    metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("vertexflow")

	vertexBuilds, err := meter.Int64Counter("vertexflow.vertex.builds",
		metric.WithDescription("Number of vertex builds"),
	)
	if err != nil {
		return nil, err
	}

	vertexLatency, err := meter.Float64Histogram("vertexflow.vertex.latency_ms",
		metric.WithDescription("Vertex build latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	vertexErrors, err := meter.Int64Counter("vertexflow.vertex.errors",
		metric.WithDescription("Number of vertex build errors"),
	)
	if err != nil {
		return nil, err
	}

	runs, err := meter.Int64Counter("vertexflow.run.count",
		metric.WithDescription("Number of runs"),
	)
	if err != nil {
		return nil, err
	}

	runLatency, err := meter.Float64Histogram("vertexflow.run.latency_ms",
		metric.WithDescription("Run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64Histogram("vertexflow.queue.depth",
		metric.WithDescription("Run queue depth observed at dispatch"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		vertexBuilds:  vertexBuilds,
		vertexLatency: vertexLatency,
		vertexErrors:  vertexErrors,
		runs:          runs,
		runLatency:    runLatency,
		queueDepth:    queueDepth,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordVertexBuild records one vertex build.
func (m *otelMetrics) RecordVertexBuild(ctx context.Context, kind string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("component_kind", kind),
	}

	m.vertexBuilds.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.vertexLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.vertexErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordRun records a completed run.
func (m *otelMetrics) RecordRun(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.runLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordQueueDepth records the run queue length.
func (m *otelMetrics) RecordQueueDepth(ctx context.Context, depth int) {
	m.queueDepth.Record(ctx, int64(depth))
}
