package vertexflow

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph construction and execution.
var (
	// ErrNilGraph indicates Run() was called with a nil graph.
	ErrNilGraph = errors.New("graph cannot be nil")

	// ErrGraphConsumed indicates a Graph was passed to Run() twice.
	// A Graph owns mutable scheduling state and supports exactly one run.
	ErrGraphConsumed = errors.New("graph already executed")

	// ErrEmptyFlow indicates a payload with no nodes.
	ErrEmptyFlow = errors.New("flow has no nodes")

	// ErrRunCancelled is the terminal error of a cancelled run.
	ErrRunCancelled = errors.New("run cancelled")
)

// Class partitions run errors by who is responsible for them.
type Class int

const (
	// ClassUser covers structural payload errors, reference resolution
	// failures, and component build failures.
	ClassUser Class = iota

	// ClassInternal covers scheduling invariant violations. These indicate
	// an engine bug, never bad input.
	ClassInternal

	// ClassCancelled covers termination via the caller's context.
	ClassCancelled
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassUser:
		return "user"
	case ClassInternal:
		return "internal"
	case ClassCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Classify reports which Class an error from this package belongs to.
// Unknown errors classify as ClassUser, matching how leaf-component errors
// surface.
func Classify(err error) Class {
	var premature *PrematureReferenceError
	if errors.As(err, &premature) {
		return ClassInternal
	}
	if errors.Is(err, ErrRunCancelled) {
		return ClassCancelled
	}
	return ClassUser
}

// DanglingEdgeError indicates an edge referencing a vertex id that does not
// exist in the payload. Fatal at build time.
type DanglingEdgeError struct {
	// Edge is the offending declared edge.
	Edge EdgePayload
	// MissingID is the referenced vertex id that was not found.
	MissingID string
}

// Error implements the error interface.
func (e *DanglingEdgeError) Error() string {
	return fmt.Sprintf("edge %s -> %s references missing vertex %s",
		e.Edge.SourceID, e.Edge.TargetID, e.MissingID)
}

// DuplicateSlugError indicates two vertices sharing a slug. Fatal at build
// time, since reference expressions address vertices by slug.
type DuplicateSlugError struct {
	Slug     string
	FirstID  string
	SecondID string
}

// Error implements the error interface.
func (e *DuplicateSlugError) Error() string {
	return fmt.Sprintf("duplicate slug %q on vertices %s and %s", e.Slug, e.FirstID, e.SecondID)
}

// DuplicateEdgeError indicates the same (source, output, target, param)
// relation declared twice. Fatal at build time.
type DuplicateEdgeError struct {
	Edge EdgePayload
}

// Error implements the error interface.
func (e *DuplicateEdgeError) Error() string {
	return fmt.Sprintf("duplicate edge %s.%s -> %s.%s",
		e.Edge.SourceID, e.Edge.SourceOutput, e.Edge.TargetID, e.Edge.TargetParam)
}

// StaticCycleError indicates the declared edges form a cycle. Cycles are only
// permitted through the dynamic-dependency mechanism at run time, never via
// declared edges. Fatal at build time.
type StaticCycleError struct {
	// Cycle lists the vertex ids on the detected cycle, in order.
	Cycle []string
}

// Error implements the error interface.
func (e *StaticCycleError) Error() string {
	return fmt.Sprintf("static cycle: %s", strings.Join(e.Cycle, " -> "))
}

// ComponentNotFoundError indicates a vertex names a component kind with no
// registered Builder.
type ComponentNotFoundError struct {
	VertexID string
	Kind     string
}

// Error implements the error interface.
func (e *ComponentNotFoundError) Error() string {
	return fmt.Sprintf("vertex %s: no builder registered for component kind %q", e.VertexID, e.Kind)
}

// PrematureReferenceError indicates a parameter referenced a vertex that was
// not yet built at resolution time. The predecessor invariant makes this
// impossible in a correct schedule, so it is classified as an engine bug and
// aborts the run.
type PrematureReferenceError struct {
	VertexID string
	Expr     string
	Target   string
}

// Error implements the error interface.
func (e *PrematureReferenceError) Error() string {
	return fmt.Sprintf("vertex %s: reference %q resolved before %s was built (scheduling bug)",
		e.VertexID, e.Expr, e.Target)
}

// LoopBoundExceededError indicates a loop vertex requested more iterations
// than its configured bound allows. Fatal for that vertex's branch only.
type LoopBoundExceededError struct {
	VertexID string
	Bound    int
}

// Error implements the error interface.
func (e *LoopBoundExceededError) Error() string {
	return fmt.Sprintf("vertex %s exceeded loop bound of %d iterations", e.VertexID, e.Bound)
}

// BuildError wraps a leaf-component failure with vertex context.
// The original error is preserved and reachable via Unwrap.
type BuildError struct {
	VertexID string
	Kind     string
	Err      error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	return fmt.Sprintf("vertex %s (%s): build failed: %v", e.VertexID, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// UpstreamError marks a vertex failed because a transitive predecessor
// failed. The vertex itself was never built.
type UpstreamError struct {
	// VertexID is the vertex marked failed without building.
	VertexID string
	// FailedID is the upstream vertex whose failure propagated here.
	FailedID string
	// Err is the upstream failure.
	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("vertex %s not built: upstream vertex %s failed: %v", e.VertexID, e.FailedID, e.Err)
}

// Unwrap returns the upstream failure for errors.Is/As support.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ResolutionError wraps a reference-resolution failure with vertex and
// parameter context.
type ResolutionError struct {
	VertexID string
	Param    string
	Err      error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("vertex %s: param %q: %v", e.VertexID, e.Param, e.Err)
}

// Unwrap returns the underlying resolver error.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}
