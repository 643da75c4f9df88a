package vertexflow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Context provides execution context to component builders.
// It extends context.Context with engine services and metadata.
//
// Context is immutable after creation. The executor derives a context per
// vertex build with the vertex id and an enriched logger.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with run and vertex
	// context. Never returns nil - defaults to slog.Default() if not
	// configured.
	Logger() *slog.Logger

	// RunID returns the unique identifier for this execution run.
	// Auto-generated if not configured.
	RunID() string

	// VertexID returns the vertex currently being built.
	// Empty string outside a build.
	VertexID() string

	// Iteration returns the 1-based build count of the current vertex.
	Iteration() int
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger    *slog.Logger
	runID     string
	vertexID  string
	iteration int
}

// Logger returns the configured logger.
func (c *executionContext) Logger() *slog.Logger {
	return c.logger
}

// RunID returns the run identifier.
func (c *executionContext) RunID() string {
	return c.runID
}

// VertexID returns the current vertex identifier.
func (c *executionContext) VertexID() string {
	return c.vertexID
}

// Iteration returns the current build iteration.
func (c *executionContext) Iteration() int {
	return c.iteration
}

// newExecutionContext wraps a standard context for one run.
func newExecutionContext(ctx context.Context, logger *slog.Logger, runID string) *executionContext {
	if logger == nil {
		logger = slog.Default()
	}
	if runID == "" {
		runID = uuid.New().String()
	}
	return &executionContext{
		Context:   ctx,
		logger:    logger,
		runID:     runID,
		iteration: 1,
	}
}

// withVertex returns a derived context for one vertex build.
func (c *executionContext) withVertex(vertexID string, iteration int) *executionContext {
	return &executionContext{
		Context:   c.Context,
		logger:    c.logger.With("run_id", c.runID, "vertex_id", vertexID, "iteration", iteration),
		runID:     c.runID,
		vertexID:  vertexID,
		iteration: iteration,
	}
}
