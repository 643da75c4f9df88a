package vertexflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/randalmurphal/vertexflow/pkg/vertexflow/journal"
	"github.com/randalmurphal/vertexflow/pkg/vertexflow/observability"
	"github.com/randalmurphal/vertexflow/pkg/vertexflow/ref"
)

// Executor runs graphs. It is stateless across runs and safe for concurrent
// use; per-run state lives on the Graph and inside each Run call.
//
// Concurrency model: a single dispatch goroutine owns every scheduling
// mutation and every vertex status transition. Builders run on a bounded
// worker pool and communicate back through an outcome channel; they never
// touch the RunManager directly.
type Executor struct {
	components *Components
	opts       executorOptions
}

// NewExecutor creates an Executor over the given component registry.
func NewExecutor(components *Components, opts ...Option) *Executor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Executor{components: components, opts: o}
}

// Components returns the component registry this executor dispatches to.
func (e *Executor) Components() *Components { return e.components }

// Run executes the graph and returns its event stream. The stream delivers
// per-vertex lifecycle events followed by exactly one EventRunCompleted,
// then closes. A Graph supports exactly one run; passing it again returns
// ErrGraphConsumed.
//
// Cancelling ctx lets in-flight builds finish, prevents new dispatches, and
// marks every vertex that never started as cancelled.
func (e *Executor) Run(ctx context.Context, g *Graph, opts ...RunOption) (<-chan Event, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if g.consumed {
		return nil, ErrGraphConsumed
	}
	g.consumed = true

	ro := runOptions{}
	for _, opt := range opts {
		opt(&ro)
	}

	ec := newExecutionContext(ctx, e.opts.logger, ro.runID)

	if e.opts.journal != nil {
		if err := e.attachJournal(g, ec.RunID()); err != nil {
			return nil, fmt.Errorf("attach journal: %w", err)
		}
	}

	events := make(chan Event, e.opts.streamBuffer)
	go e.dispatchLoop(ec, g, ro.inputs, events)
	return events, nil
}

// RunSync executes the graph and blocks until it terminates, discarding the
// intermediate stream events.
func (e *Executor) RunSync(ctx context.Context, g *Graph, opts ...RunOption) (*RunResult, error) {
	events, err := e.Run(ctx, g, opts...)
	if err != nil {
		return nil, err
	}
	var result *RunResult
	for evt := range events {
		if evt.Type == EventRunCompleted {
			result = evt.Result
		}
	}
	if result == nil {
		return nil, errors.New("run stream closed without a completion event")
	}
	return result, nil
}

// buildOutcome is what a worker reports back to the dispatch goroutine.
type buildOutcome struct {
	id        string
	iteration int
	outputs   map[string]any
	err       error
	recorder  *requestRecorder
	elapsed   time.Duration
}

// runState is the dispatch goroutine's working state for one run.
type runState struct {
	g        *Graph
	events   chan<- Event
	outcomes chan buildOutcome
	inputs   map[string]any

	inFlight   int
	vertexErrs map[string]error

	cancelled bool
	fatal     error
	firstErr  error
}

func (e *Executor) dispatchLoop(ec *executionContext, g *Graph, inputs map[string]any, events chan<- Event) {
	defer close(events)

	runCtx, runSpan := e.opts.spans.StartRunSpan(ec.Context, ec.RunID())
	elapsed := observability.TimedOperation()
	observability.LogRunStart(ec.Logger(), ec.RunID(), len(g.VertexIDs()))

	pool, err := ants.NewPool(e.opts.maxWorkers)
	if err != nil {
		result := e.finishRun(ec, g, nil, fmt.Errorf("create worker pool: %w", err), elapsed())
		e.opts.spans.EndSpanWithError(runSpan, result.Err)
		events <- Event{Type: EventRunCompleted, Err: result.Err, Result: result}
		return
	}
	defer pool.Release()

	st := &runState{
		g:          g,
		events:     events,
		outcomes:   make(chan buildOutcome, e.opts.maxWorkers),
		inputs:     inputs,
		vertexErrs: make(map[string]error),
	}

	for {
		if !st.cancelled && st.fatal == nil {
			if err := ec.Context.Err(); err != nil {
				st.cancelled = true
			}
		}

		if !st.cancelled && st.fatal == nil {
			for st.inFlight < e.opts.maxWorkers && st.fatal == nil {
				id, ok := g.run.Dequeue()
				if !ok {
					break
				}
				e.opts.metrics.RecordQueueDepth(runCtx, g.run.QueueLen())
				e.dispatchVertex(ec, runCtx, st, pool, id)
			}
		}

		if st.inFlight == 0 {
			break
		}

		if st.cancelled || st.fatal != nil {
			e.handleOutcome(ec, runCtx, st, <-st.outcomes)
			continue
		}
		select {
		case out := <-st.outcomes:
			e.handleOutcome(ec, runCtx, st, out)
		case <-ec.Context.Done():
			st.cancelled = true
		}
	}

	var terminal error
	switch {
	case st.fatal != nil:
		terminal = st.fatal
	case st.cancelled:
		terminal = fmt.Errorf("%w: %w", ErrRunCancelled, ec.Context.Err())
	default:
		terminal = st.firstErr
	}

	result := e.finishRun(ec, g, st.vertexErrs, terminal, elapsed())
	e.opts.metrics.RecordRun(runCtx, !result.Failed(), time.Duration(elapsed())*time.Millisecond)
	e.opts.spans.EndSpanWithError(runSpan, result.Err)
	events <- Event{Type: EventRunCompleted, Err: result.Err, Result: result}
}

// dispatchVertex resolves one vertex's parameters and hands the build to the
// worker pool. Resolution happens here, on the dispatch goroutine, so it
// reads published outputs without synchronization.
func (e *Executor) dispatchVertex(ec *executionContext, runCtx context.Context, st *runState, pool *ants.Pool, id string) {
	v := st.g.vertices[id]
	if v == nil {
		st.fatal = fmt.Errorf("dequeued unknown vertex %s", id)
		return
	}

	builder, ok := e.components.Lookup(v.kind)
	if !ok {
		e.failVertex(ec, st, v, &ComponentNotFoundError{VertexID: id, Kind: v.kind})
		return
	}

	params, err := e.resolveParams(st.g, v)
	if err != nil {
		var premature *PrematureReferenceError
		if errors.As(err, &premature) {
			st.fatal = err
		}
		e.failVertex(ec, st, v, err)
		return
	}

	v.status = StatusBuilding
	v.iteration++
	iteration := v.iteration

	vctx := ec.withVertex(id, iteration)
	observability.LogVertexStart(vctx.Logger(), id, v.kind, iteration)
	st.events <- Event{Type: EventVertexStarted, VertexID: id, Iteration: iteration}

	req := &BuildRequest{
		VertexID:  id,
		Slug:      v.slug,
		Params:    params,
		Inputs:    st.inputs,
		Iteration: iteration,
	}
	kind := v.kind

	st.inFlight++
	submitErr := pool.Submit(func() {
		_, span := e.opts.spans.StartVertexSpan(runCtx, id, kind)
		start := time.Now()

		out := buildOutcome{id: id, iteration: iteration, recorder: &requestRecorder{}}
		func() {
			defer func() {
				if r := recover(); r != nil {
					out.err = fmt.Errorf("builder panic: %v", r)
				}
			}()
			out.outputs, out.err = builder.Build(vctx, req, out.recorder)
		}()
		out.elapsed = time.Since(start)

		e.opts.spans.EndSpanWithError(span, out.err)
		st.outcomes <- out
	})
	if submitErr != nil {
		st.inFlight--
		e.failVertex(ec, st, v, fmt.Errorf("submit build: %w", submitErr))
	}
}

// handleOutcome applies one finished build to the scheduling state.
func (e *Executor) handleOutcome(ec *executionContext, runCtx context.Context, st *runState, out buildOutcome) {
	st.inFlight--
	v := st.g.vertices[out.id]

	e.opts.metrics.RecordVertexBuild(runCtx, v.kind, out.elapsed, out.err)

	if out.err != nil {
		e.failVertex(ec, st, v, &BuildError{VertexID: out.id, Kind: v.kind, Err: out.err})
		return
	}

	// Publish outputs before any successor can be dispatched.
	v.outputs = out.outputs
	v.status = StatusBuilt
	vctx := ec.withVertex(out.id, out.iteration)
	observability.LogVertexBuilt(vctx.Logger(), out.id, float64(out.elapsed.Milliseconds()))
	st.events <- Event{Type: EventVertexBuilt, VertexID: out.id, Iteration: out.iteration, Outputs: out.outputs}

	for _, d := range out.recorder.deps {
		if dep, ok := st.g.vertices[d.dependency]; ok && dep.status.Terminal() {
			// The dependency settled while this build was in flight. Its
			// MarkBuilt (or Prune) has already run, so nothing would ever
			// clear the relation and the dependent would strand.
			continue
		}
		st.g.run.AddDynamicDependency(d.dependent, d.dependency)
	}

	if out.recorder.requeue {
		bound := loopBound(v, e.opts.maxLoopIterations)
		if out.iteration+1 > bound {
			e.failVertex(ec, st, v, &LoopBoundExceededError{VertexID: out.id, Bound: bound})
			return
		}
		// Another iteration before any consumer proceeds: the vertex becomes
		// its own predecessor and re-enters the queue. No MarkBuilt, so its
		// successors stay blocked on it.
		st.g.run.AddDynamicDependency(out.id, out.id)
		st.g.run.Requeue(out.id)
		v.status = StatusReady
		return
	}

	st.g.run.MarkBuilt(out.id)
	e.markQueuedReady(st.g)
}

// failVertex marks a vertex failed and prunes its transitive successors.
// Independent branches keep draining.
func (e *Executor) failVertex(ec *executionContext, st *runState, v *Vertex, cause error) {
	v.status = StatusFailed
	v.err = cause
	st.vertexErrs[v.id] = cause
	if st.firstErr == nil {
		st.firstErr = cause
	}

	observability.LogVertexFailed(ec.Logger(), v.id, cause)
	st.events <- Event{Type: EventVertexFailed, VertexID: v.id, Iteration: v.iteration, Err: cause}

	downstream := e.collectDownstream(st.g, v.id)
	if len(downstream) == 0 {
		return
	}
	for _, id := range downstream {
		d := st.g.vertices[id]
		uerr := &UpstreamError{VertexID: id, FailedID: v.id, Err: cause}
		d.status = StatusFailed
		d.err = uerr
		st.vertexErrs[id] = uerr
		st.events <- Event{Type: EventVertexFailed, VertexID: id, Err: uerr}
	}
	st.g.run.Prune(downstream)
	observability.LogBranchPruned(ec.Logger(), v.id, downstream)
}

// collectDownstream walks the successor map transitively from id and returns
// every reachable vertex that has not yet reached a terminal state.
func (e *Executor) collectDownstream(g *Graph, id string) []string {
	seen := map[string]struct{}{id: {}}
	stack := []string{id}
	var out []string

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range g.run.Successors(cur) {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			stack = append(stack, s)
			if v := g.vertices[s]; v != nil && !v.status.Terminal() {
				out = append(out, s)
			}
		}
	}
	return out
}

// markQueuedReady promotes every queued pending vertex to ready.
func (e *Executor) markQueuedReady(g *Graph) {
	for _, id := range g.run.Queue() {
		if v := g.vertices[id]; v != nil && v.status == StatusPending {
			v.status = StatusReady
		}
	}
}

// finishRun assigns terminal statuses, assembles the RunResult, and logs it.
func (e *Executor) finishRun(ec *executionContext, g *Graph, vertexErrs map[string]error, terminal error, durationMs float64) *RunResult {
	built, failed := 0, 0
	for _, id := range g.VertexIDs() {
		v := g.vertices[id]
		switch {
		case v.status == StatusBuilt:
			built++
		case v.status == StatusFailed:
			failed++
		case !v.status.Terminal():
			v.status = StatusCancelled
		}
	}

	outputs := make(map[string]map[string]any)
	for _, v := range g.OutputVertices() {
		if v.status == StatusBuilt {
			outputs[v.slug] = v.outputs
		}
	}

	result := &RunResult{
		RunID:    ec.RunID(),
		Outputs:  outputs,
		Statuses: g.Statuses(),
		Errors:   vertexErrs,
		Err:      terminal,
	}

	if terminal != nil {
		observability.LogRunError(ec.Logger(), ec.RunID(), terminal, durationMs)
	} else {
		observability.LogRunComplete(ec.Logger(), ec.RunID(), durationMs, built, failed)
	}
	return result
}

// resolveParams produces the effective parameter map for one vertex build:
// declared params, overlaid with incoming edge bindings, with every
// reference expression resolved against published outputs.
func (e *Executor) resolveParams(g *Graph, v *Vertex) (map[string]any, error) {
	params := make(map[string]any, len(v.params)+4)
	for k, val := range v.params {
		params[k] = val
	}

	for _, edge := range g.incomingEdges(v.id) {
		src := g.vertices[edge.SourceID]
		if src == nil {
			return nil, fmt.Errorf("edge source %s does not exist", edge.SourceID)
		}
		if src.status != StatusBuilt {
			return nil, &PrematureReferenceError{
				VertexID: v.id,
				Expr:     fmt.Sprintf("@%s.%s", src.slug, edge.SourceOutput),
				Target:   src.slug,
			}
		}
		params[edge.TargetParam] = src.outputs[edge.SourceOutput]
	}

	resolve := func(ex *ref.Expr) (any, error) {
		src := g.bySlug[ex.Slug]
		if src == nil {
			return nil, &ref.NodeNotFoundError{Slug: ex.Slug}
		}
		if src.status != StatusBuilt {
			return nil, &PrematureReferenceError{VertexID: v.id, Expr: ex.String(), Target: ex.Slug}
		}
		return ex.Resolve(src.outputs)
	}

	for k, val := range params {
		resolved, err := resolveValue(val, resolve)
		if err != nil {
			var premature *PrematureReferenceError
			if errors.As(err, &premature) {
				return nil, err
			}
			return nil, &ResolutionError{VertexID: v.id, Param: k, Err: err}
		}
		params[k] = resolved
	}
	return params, nil
}

// resolveValue resolves reference expressions inside one parameter value,
// recursing into maps and slices. A string that is exactly one expression
// resolves to the referenced value with its type preserved; a string with
// embedded expressions is interpolated.
func resolveValue(val any, resolve func(*ref.Expr) (any, error)) (any, error) {
	switch tv := val.(type) {
	case string:
		if ref.IsExpr(tv) {
			ex, err := ref.Parse(tv)
			if err != nil {
				return nil, err
			}
			return resolve(ex)
		}
		return ref.Interpolate(tv, resolve)

	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, inner := range tv {
			r, err := resolveValue(inner, resolve)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil

	case []any:
		out := make([]any, len(tv))
		for i, inner := range tv {
			r, err := resolveValue(inner, resolve)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil

	default:
		return val, nil
	}
}

// loopBound returns the iteration bound for a vertex: its "max_iterations"
// parameter when present, else the executor default.
func loopBound(v *Vertex, fallback int) int {
	raw, ok := v.params["max_iterations"]
	if !ok {
		return fallback
	}
	switch n := raw.(type) {
	case int:
		if n >= 1 {
			return n
		}
	case float64:
		if n >= 1 {
			return int(n)
		}
	}
	return fallback
}

// attachJournal registers a journaling observer on the graph and writes a
// bootstrap trace describing the already-seeded scheduling state, so the
// full journal replays from scratch.
func (e *Executor) attachJournal(g *Graph, runID string) error {
	store := e.opts.journal
	seq := uint64(0)

	appendEvent := func(evt MutationEvent) error {
		seq++
		data, err := evt.Encode()
		if err != nil {
			return err
		}
		return store.Append(runID, seq, data)
	}

	snap := g.run.Snapshot()
	for _, dependent := range sortedMapKeys(snap.Predecessors) {
		for _, dep := range snap.Predecessors[dependent] {
			if err := appendEvent(MutationEvent{
				Op:     OpAddDependency,
				Change: Change{Op: OpAddDependency, Args: []string{dependent, dep}},
				Timing: TimingAfter,
			}); err != nil {
				return err
			}
		}
	}
	if len(snap.Queue) > 0 {
		if err := appendEvent(MutationEvent{
			Op:     OpExtendQueue,
			Change: Change{Op: OpExtendQueue, Args: snap.Queue},
			Timing: TimingAfter,
		}); err != nil {
			return err
		}
	}

	g.dispatcher.RegisterObserver(func(evt MutationEvent) error {
		if evt.Timing != TimingAfter {
			return nil
		}
		return appendEvent(evt)
	})
	return nil
}

// LoadJournal reads back the journaled mutation events of one run, in order.
// Feed the result to Replay to reconstruct the final scheduling state.
func LoadJournal(store journal.Store, runID string) ([]MutationEvent, error) {
	records, err := store.List(runID)
	if err != nil {
		return nil, err
	}
	events := make([]MutationEvent, 0, len(records))
	for _, rec := range records {
		evt, err := DecodeMutationEvent(rec.Data)
		if err != nil {
			return nil, fmt.Errorf("record step %d: %w", rec.Step, err)
		}
		events = append(events, evt)
	}
	return events, nil
}

func sortedMapKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
