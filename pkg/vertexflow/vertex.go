package vertexflow

// Status is the lifecycle state of a vertex during a run.
type Status string

// Vertex lifecycle states.
//
// Pending → Ready → Building → {Built | Failed}. Built is terminal except for
// vertices participating in a loop, which may transition back to Ready via an
// explicit requeue. Cancelled is assigned to vertices that never started when
// the run is cancelled.
const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusBuilding  Status = "building"
	StatusBuilt     Status = "built"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is an end state for a run.
func (s Status) Terminal() bool {
	return s == StatusBuilt || s == StatusFailed || s == StatusCancelled
}

// Vertex is one executable node in a flow graph.
//
// A Vertex is owned exclusively by its Graph. Status and outputs are mutated
// only by the executor's dispatch goroutine; read them after the run has
// terminated, or consume the event stream instead.
type Vertex struct {
	id     string
	slug   string
	kind   string
	params map[string]any

	status    Status
	outputs   map[string]any
	err       error
	iteration int
}

// ID returns the unique vertex identifier.
func (v *Vertex) ID() string { return v.id }

// Slug returns the human-readable alias used in reference expressions.
// Slugs are unique within a graph.
func (v *Vertex) Slug() string { return v.slug }

// Kind returns the component kind this vertex is built by.
func (v *Vertex) Kind() string { return v.kind }

// Params returns the declared parameter map. The returned map must not be
// modified.
func (v *Vertex) Params() map[string]any { return v.params }

// Status returns the current lifecycle state.
func (v *Vertex) Status() Status { return v.status }

// Outputs returns the values produced by the last successful build,
// or nil if the vertex has not been built.
func (v *Vertex) Outputs() map[string]any { return v.outputs }

// Err returns the error attached to a failed vertex, or nil.
func (v *Vertex) Err() error { return v.err }

// Iteration returns how many times the vertex has been built.
// It is greater than one only for loop vertices.
func (v *Vertex) Iteration() int { return v.iteration }

// Edge is a directed data dependency between two vertices: the named output
// of the source feeds the named parameter of the target. Edges are immutable
// once the graph is built.
type Edge struct {
	SourceID     string
	SourceOutput string
	TargetID     string
	TargetParam  string
}
