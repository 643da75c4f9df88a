package vertexflow

// EventType identifies one kind of run-stream event.
type EventType string

// Run stream event types, in rough lifecycle order.
const (
	// EventVertexStarted is emitted when a vertex build is dispatched to a
	// worker.
	EventVertexStarted EventType = "vertex_started"

	// EventVertexBuilt is emitted after a vertex builds successfully and its
	// outputs are published.
	EventVertexBuilt EventType = "vertex_built"

	// EventVertexFailed is emitted when a vertex build fails, or when a
	// vertex is marked failed because an upstream vertex failed.
	EventVertexFailed EventType = "vertex_failed"

	// EventRunCompleted is the final event of every run. It carries the full
	// result and is followed by channel close.
	EventRunCompleted EventType = "run_completed"
)

// Event is one entry of the run stream returned by Run. Exactly one
// EventRunCompleted is delivered per run, always last.
type Event struct {
	Type EventType

	// VertexID identifies the vertex for the per-vertex event types.
	VertexID string

	// Iteration is the 1-based build count for vertex events. Greater than
	// one only for loop vertices.
	Iteration int

	// Outputs carries the published outputs on EventVertexBuilt.
	Outputs map[string]any

	// Err carries the failure on EventVertexFailed, or the terminal run
	// error on EventRunCompleted (nil for a clean run).
	Err error

	// Result is set on EventRunCompleted only.
	Result *RunResult
}

// RunResult is the terminal summary of one run.
type RunResult struct {
	// RunID identifies the run.
	RunID string

	// Outputs maps each output vertex's slug to its outputs. Output vertices
	// are the declared ones, or every sink vertex when none were declared.
	// Failed or cancelled output vertices are absent.
	Outputs map[string]map[string]any

	// Statuses holds the final status of every vertex, keyed by id.
	Statuses map[string]Status

	// Errors holds the failure of every failed vertex, keyed by id. Vertices
	// pruned after an upstream failure carry an UpstreamError.
	Errors map[string]error

	// Err is the terminal run error: nil when every vertex built,
	// ErrRunCancelled when the context was cancelled, otherwise the first
	// vertex failure (or an internal scheduling error).
	Err error
}

// Failed reports whether the run terminated with any error.
func (r *RunResult) Failed() bool {
	return r.Err != nil || len(r.Errors) > 0
}
