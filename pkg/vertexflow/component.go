package vertexflow

import (
	"sort"
	"sync"
)

// BuildRequest carries everything a leaf component needs to build one vertex.
type BuildRequest struct {
	// VertexID and Slug identify the vertex being built.
	VertexID string
	Slug     string

	// Params holds the vertex parameters with all reference expressions and
	// upstream-output placeholders already resolved.
	Params map[string]any

	// Inputs holds the run-level inputs passed to Run.
	Inputs map[string]any

	// Iteration is the 1-based build count for this vertex. It exceeds one
	// only when the vertex requeued itself through the Scheduler.
	Iteration int
}

// Scheduler is the narrow callback surface a builder may use to influence
// scheduling while its vertex is being built. Requests are collected during
// the build and applied by the executor's dispatch goroutine after the
// builder returns; builders never mutate scheduling state directly.
type Scheduler interface {
	// AddDependency requests that dependency be inserted as a not-yet-built
	// predecessor of dependent, atomically in both scheduling maps.
	AddDependency(dependent, dependency string)

	// RequeueSelf requests another iteration of the vertex being built. The
	// current outputs are published first, then the vertex re-enters the run
	// queue before any of its consumers may proceed. Subject to the vertex's
	// loop bound.
	RequeueSelf()
}

// Builder is the leaf-component build contract: given resolved parameters,
// produce the vertex's outputs. Implementations may block on I/O; they run on
// worker goroutines, not on the dispatch loop. A Builder must not touch
// scheduling state except through the Scheduler callback.
type Builder interface {
	Build(ctx Context, req *BuildRequest, sched Scheduler) (map[string]any, error)
}

// BuilderFunc adapts a function to the Builder interface.
type BuilderFunc func(ctx Context, req *BuildRequest, sched Scheduler) (map[string]any, error)

// Build implements Builder.
func (f BuilderFunc) Build(ctx Context, req *BuildRequest, sched Scheduler) (map[string]any, error) {
	return f(ctx, req, sched)
}

// Components maps component kinds to their builders. The executor looks
// builders up here by each vertex's component kind; it never inspects what a
// builder does internally.
//
// Registration and lookup are safe for concurrent use, so a process may keep
// registering kinds while executors are running.
type Components struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewComponents creates an empty component registry.
func NewComponents() *Components {
	return &Components{builders: make(map[string]Builder)}
}

// Register adds or replaces the builder for a component kind.
func (c *Components) Register(kind string, b Builder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builders[kind] = b
}

// Lookup returns the builder for a component kind.
func (c *Components) Lookup(kind string) (Builder, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.builders[kind]
	return b, ok
}

// Kinds returns every registered component kind, sorted.
func (c *Components) Kinds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kinds := make([]string, 0, len(c.builders))
	for k := range c.builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// dependencyRequest is one recorded AddDependency call.
type dependencyRequest struct {
	dependent  string
	dependency string
}

// requestRecorder implements Scheduler by recording requests for the
// dispatch loop to apply once the build returns. It is used by exactly one
// build at a time and read only after that build completes, so it needs no
// locking.
type requestRecorder struct {
	deps    []dependencyRequest
	requeue bool
}

func (r *requestRecorder) AddDependency(dependent, dependency string) {
	r.deps = append(r.deps, dependencyRequest{dependent: dependent, dependency: dependency})
}

func (r *requestRecorder) RequeueSelf() {
	r.requeue = true
}
