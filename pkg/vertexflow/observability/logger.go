// Package observability provides structured logging, metrics, and tracing
// for the flow engine.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds engine context to a logger.
// Returns a new logger with run_id, vertex_id, and iteration fields.
func EnrichLogger(logger *slog.Logger, runID, vertexID string, iteration int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("vertex_id", vertexID),
		slog.Int("iteration", iteration),
	)
}

// LogRunStart logs the start of a run.
func LogRunStart(logger *slog.Logger, runID string, vertexCount int) {
	if logger == nil {
		return
	}
	logger.Info("run starting",
		slog.String("run_id", runID),
		slog.Int("vertices", vertexCount),
	)
}

// LogRunComplete logs run termination with its final tallies.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, built, failed int) {
	if logger == nil {
		return
	}
	logger.Info("run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("built", built),
		slog.Int("failed", failed),
	)
}

// LogRunError logs a fatal run error.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogVertexStart logs the dispatch of one vertex build.
func LogVertexStart(logger *slog.Logger, vertexID, kind string, iteration int) {
	if logger == nil {
		return
	}
	logger.Debug("vertex building",
		slog.String("vertex_id", vertexID),
		slog.String("kind", kind),
		slog.Int("iteration", iteration),
	)
}

// LogVertexBuilt logs a successful vertex build.
func LogVertexBuilt(logger *slog.Logger, vertexID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("vertex built",
		slog.String("vertex_id", vertexID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogVertexFailed logs a vertex build failure.
func LogVertexFailed(logger *slog.Logger, vertexID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("vertex failed",
		slog.String("vertex_id", vertexID),
		slog.String("error", err.Error()),
	)
}

// LogBranchPruned logs the removal of a failed vertex's successors.
func LogBranchPruned(logger *slog.Logger, vertexID string, pruned []string) {
	if logger == nil {
		return
	}
	logger.Warn("branch pruned",
		slog.String("failed_vertex", vertexID),
		slog.Any("pruned", pruned),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in
// milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
