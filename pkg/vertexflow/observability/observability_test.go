package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TestMetricsRecorder_RecordsInstruments tests that builds and runs land in
// the configured meter provider.
func TestMetricsRecorder_RecordsInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	rec := NewMetricsRecorder()
	ctx := context.Background()

	rec.RecordVertexBuild(ctx, "echo", 5*time.Millisecond, nil)
	rec.RecordVertexBuild(ctx, "echo", 8*time.Millisecond, errors.New("fail"))
	rec.RecordRun(ctx, true, 20*time.Millisecond)
	rec.RecordQueueDepth(ctx, 4)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.NotEmpty(t, rm.ScopeMetrics)

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	for _, want := range []string{
		"vertexflow.vertex.builds",
		"vertexflow.vertex.errors",
		"vertexflow.vertex.latency_ms",
		"vertexflow.run.count",
		"vertexflow.run.latency_ms",
		"vertexflow.queue.depth",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}

// TestSpanManager_RunAndVertexSpans tests span lifecycle against the trace
// SDK.
func TestSpanManager_RunAndVertexSpans(t *testing.T) {
	otel.SetTracerProvider(sdktrace.NewTracerProvider())

	sm := NewSpanManager()
	ctx, runSpan := sm.StartRunSpan(context.Background(), "run-1")
	require.NotNil(t, runSpan)

	vctx, vertexSpan := sm.StartVertexSpan(ctx, "v1", "echo")
	require.NotNil(t, vertexSpan)
	assert.True(t, vertexSpan.SpanContext().IsValid())

	sm.AddSpanEvent(vctx, "outputs published", attribute.Int("count", 2))
	sm.EndSpanWithError(vertexSpan, errors.New("build failed"))
	sm.EndSpanWithError(runSpan, nil)
	sm.EndSpanWithError(nil, nil) // nil span is a no-op
}

// TestNoopImplementations tests that disabled observability never panics.
func TestNoopImplementations(t *testing.T) {
	ctx := context.Background()

	var m MetricsRecorder = NoopMetrics{}
	m.RecordVertexBuild(ctx, "k", time.Second, nil)
	m.RecordRun(ctx, false, time.Second)
	m.RecordQueueDepth(ctx, 1)

	var sm SpanManager = NoopSpanManager{}
	sctx, span := sm.StartRunSpan(ctx, "r")
	assert.NotNil(t, sctx)
	_, vspan := sm.StartVertexSpan(sctx, "v", "k")
	sm.AddSpanEvent(sctx, "event")
	sm.EndSpanWithError(span, nil)
	sm.EndSpanWithError(vspan, errors.New("x"))
}

// TestEnrichLogger tests nil handling.
func TestEnrichLogger(t *testing.T) {
	assert.Nil(t, EnrichLogger(nil, "r", "v", 1))
}

// TestTimedOperation tests elapsed measurement.
func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), float64(0))
}
