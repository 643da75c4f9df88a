package vertexflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRun_Linear tests a simple chain built to completion.
func TestRun_Linear(t *testing.T) {
	exec := NewExecutor(echoComponents())
	g := mustBuild(t, linearPayload())

	events, result := runGraph(t, exec, g)

	require.NoError(t, result.Err)
	assert.False(t, result.Failed())
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, StatusBuilt, result.Statuses[id], id)
	}

	// Exactly one completion event, delivered last.
	completed := eventsOfType(events, EventRunCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, completed[0], events[len(events)-1])
	assert.Len(t, eventsOfType(events, EventVertexBuilt), 3)
}

// TestRun_EdgeBindings tests that each edge feeds the source output into the
// target parameter before the target builds.
func TestRun_EdgeBindings(t *testing.T) {
	exec := NewExecutor(echoComponents())
	g := mustBuild(t, linearPayload())

	_, result := runGraph(t, exec, g)

	require.NoError(t, result.Err)
	// c is the sink; its "in" param was bound to b's "value" output.
	require.Contains(t, result.Outputs, "c")
	assert.Equal(t, "B", result.Outputs["c"]["in"])
	assert.Equal(t, "C", result.Outputs["c"]["value"])
}

// TestRun_Diamond tests parallel branches joining at a sink.
func TestRun_Diamond(t *testing.T) {
	tr := &tracker{}
	c := NewComponents()
	c.Register("echo", trackingBuilder(tr))
	exec := NewExecutor(c)
	g := mustBuild(t, diamondPayload())

	_, result := runGraph(t, exec, g)

	require.NoError(t, result.Err)
	order := tr.snapshot()
	require.Len(t, order, 4)
	assert.Equal(t, "a", order[0])
	assert.Equal(t, "d", order[3])

	require.Contains(t, result.Outputs, "d")
	assert.Equal(t, "B", result.Outputs["d"]["left"])
	assert.Equal(t, "C", result.Outputs["d"]["right"])
}

// TestRun_ReferenceExpressions tests cross-vertex value access through
// @slug.output expressions, both exact and interpolated.
func TestRun_ReferenceExpressions(t *testing.T) {
	payload := FlowPayload{
		Nodes: []NodePayload{
			{ID: "src", Slug: "src", Kind: "echo", Params: map[string]any{
				"value": map[string]any{"items": []any{"x", "y"}},
			}},
			{ID: "dst", Slug: "dst", Kind: "echo", Params: map[string]any{
				"first":  "@src.value.items[0]",
				"report": "got @src.value.items[1] back",
			}},
		},
		Edges: []EdgePayload{
			{SourceID: "src", SourceOutput: "value", TargetID: "dst", TargetParam: "upstream"},
		},
	}
	exec := NewExecutor(echoComponents())
	g := mustBuild(t, payload)

	_, result := runGraph(t, exec, g)

	require.NoError(t, result.Err)
	out := result.Outputs["dst"]
	assert.Equal(t, "x", out["first"])
	assert.Equal(t, "got y back", out["report"])
}

// TestRun_RunLevelInputs tests that WithInputs reaches every builder.
func TestRun_RunLevelInputs(t *testing.T) {
	var seen map[string]any
	c := NewComponents()
	c.Register("echo", BuilderFunc(func(ctx Context, req *BuildRequest, sched Scheduler) (map[string]any, error) {
		seen = req.Inputs
		return map[string]any{}, nil
	}))
	exec := NewExecutor(c)
	g := mustBuild(t, FlowPayload{Nodes: []NodePayload{{ID: "a", Slug: "a", Kind: "echo"}}})

	_, result := runGraph(t, exec, g, WithInputs(map[string]any{"query": "hello"}))

	require.NoError(t, result.Err)
	assert.Equal(t, "hello", seen["query"])
}

// TestRun_WithRunID tests run id propagation into the result and context.
func TestRun_WithRunID(t *testing.T) {
	var ctxRunID string
	c := NewComponents()
	c.Register("echo", BuilderFunc(func(ctx Context, req *BuildRequest, sched Scheduler) (map[string]any, error) {
		ctxRunID = ctx.RunID()
		return map[string]any{}, nil
	}))
	exec := NewExecutor(c)
	g := mustBuild(t, FlowPayload{Nodes: []NodePayload{{ID: "a", Slug: "a", Kind: "echo"}}})

	_, result := runGraph(t, exec, g, WithRunID("run-42"))

	assert.Equal(t, "run-42", result.RunID)
	assert.Equal(t, "run-42", ctxRunID)
}

// TestRun_FailurePrunesBranch tests that a failed vertex takes down its
// transitive successors while an independent branch completes.
func TestRun_FailurePrunesBranch(t *testing.T) {
	payload := FlowPayload{
		Nodes: []NodePayload{
			{ID: "root", Slug: "root", Kind: "echo", Params: map[string]any{"value": "R"}},
			{ID: "bad", Slug: "bad", Kind: "fail"},
			{ID: "after_bad", Slug: "after_bad", Kind: "echo"},
			{ID: "ok", Slug: "ok", Kind: "echo", Params: map[string]any{"value": "OK"}},
		},
		Edges: []EdgePayload{
			{SourceID: "root", SourceOutput: "value", TargetID: "bad", TargetParam: "in"},
			{SourceID: "bad", SourceOutput: "value", TargetID: "after_bad", TargetParam: "in"},
			{SourceID: "root", SourceOutput: "value", TargetID: "ok", TargetParam: "in"},
		},
	}
	c := echoComponents()
	c.Register("fail", failingBuilder(errBoom))
	exec := NewExecutor(c)
	g := mustBuild(t, payload)

	events, result := runGraph(t, exec, g)

	assert.Equal(t, StatusBuilt, result.Statuses["root"])
	assert.Equal(t, StatusBuilt, result.Statuses["ok"])
	assert.Equal(t, StatusFailed, result.Statuses["bad"])
	assert.Equal(t, StatusFailed, result.Statuses["after_bad"])

	var buildErr *BuildError
	require.ErrorAs(t, result.Errors["bad"], &buildErr)
	assert.ErrorIs(t, buildErr, errBoom)

	var upstream *UpstreamError
	require.ErrorAs(t, result.Errors["after_bad"], &upstream)
	assert.Equal(t, "bad", upstream.FailedID)
	assert.ErrorIs(t, upstream, errBoom)

	// The independent branch still produced its outputs.
	assert.Equal(t, "R", result.Outputs["ok"]["in"])
	assert.Len(t, eventsOfType(events, EventVertexFailed), 2)
	assert.True(t, result.Failed())
}

// TestRun_ComponentNotFound tests an unregistered component kind.
func TestRun_ComponentNotFound(t *testing.T) {
	exec := NewExecutor(NewComponents())
	g := mustBuild(t, FlowPayload{Nodes: []NodePayload{{ID: "a", Slug: "a", Kind: "mystery"}}})

	_, result := runGraph(t, exec, g)

	var notFound *ComponentNotFoundError
	require.ErrorAs(t, result.Errors["a"], &notFound)
	assert.Equal(t, "mystery", notFound.Kind)
	assert.Equal(t, StatusFailed, result.Statuses["a"])
}

// TestRun_BuilderPanic tests that a panicking builder fails its vertex
// without crashing the run.
func TestRun_BuilderPanic(t *testing.T) {
	c := NewComponents()
	c.Register("echo", BuilderFunc(func(ctx Context, req *BuildRequest, sched Scheduler) (map[string]any, error) {
		panic("builder exploded")
	}))
	exec := NewExecutor(c)
	g := mustBuild(t, FlowPayload{Nodes: []NodePayload{{ID: "a", Slug: "a", Kind: "echo"}}})

	_, result := runGraph(t, exec, g)

	require.Error(t, result.Errors["a"])
	assert.Contains(t, result.Errors["a"].Error(), "builder exploded")
}

// TestRun_PrematureReference tests that referencing an unbuilt vertex aborts
// the run as an internal error.
func TestRun_PrematureReference(t *testing.T) {
	payload := FlowPayload{
		Nodes: []NodePayload{
			// early refers to late, but no edge orders them.
			{ID: "early", Slug: "early", Kind: "echo", Params: map[string]any{"v": "@late.value"}},
			{ID: "late", Slug: "late", Kind: "echo", Params: map[string]any{"value": "L"}},
		},
	}
	exec := NewExecutor(echoComponents(), WithMaxWorkers(1))
	g := mustBuild(t, payload)

	_, result := runGraph(t, exec, g)

	var premature *PrematureReferenceError
	require.ErrorAs(t, result.Err, &premature)
	assert.Equal(t, "late", premature.Target)
	assert.Equal(t, ClassInternal, Classify(result.Err))
	assert.Equal(t, StatusCancelled, result.Statuses["late"])
}

// TestRun_UnknownReferenceSlug tests that referencing a nonexistent vertex is
// a user error scoped to the referencing vertex.
func TestRun_UnknownReferenceSlug(t *testing.T) {
	payload := FlowPayload{
		Nodes: []NodePayload{
			{ID: "a", Slug: "a", Kind: "echo", Params: map[string]any{"v": "@ghost.value"}},
		},
	}
	exec := NewExecutor(echoComponents())
	g := mustBuild(t, payload)

	_, result := runGraph(t, exec, g)

	var resErr *ResolutionError
	require.ErrorAs(t, result.Errors["a"], &resErr)
	assert.Equal(t, "v", resErr.Param)
	assert.Equal(t, ClassUser, Classify(result.Errors["a"]))
}

// TestRun_Cancellation tests that cancelling the context stops dispatch and
// marks unstarted vertices cancelled.
func TestRun_Cancellation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c := NewComponents()
	c.Register("slow", BuilderFunc(func(ctx Context, req *BuildRequest, sched Scheduler) (map[string]any, error) {
		close(started)
		<-release
		return map[string]any{"value": "done"}, nil
	}))
	c.Register("echo", echoBuilder())

	payload := FlowPayload{
		Nodes: []NodePayload{
			{ID: "a", Slug: "a", Kind: "slow"},
			{ID: "b", Slug: "b", Kind: "echo"},
		},
		Edges: []EdgePayload{{SourceID: "a", SourceOutput: "value", TargetID: "b", TargetParam: "in"}},
	}

	exec := NewExecutor(c)
	g := mustBuild(t, payload)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := exec.Run(ctx, g)
	require.NoError(t, err)

	<-started
	cancel()
	close(release)

	var result *RunResult
	for evt := range events {
		if evt.Type == EventRunCompleted {
			result = evt.Result
		}
	}
	require.NotNil(t, result)

	assert.ErrorIs(t, result.Err, ErrRunCancelled)
	assert.Equal(t, ClassCancelled, Classify(result.Err))
	// The in-flight vertex finished; its successor never started.
	assert.Equal(t, StatusBuilt, result.Statuses["a"])
	assert.Equal(t, StatusCancelled, result.Statuses["b"])
}

// TestRun_NilGraph tests the nil graph guard.
func TestRun_NilGraph(t *testing.T) {
	exec := NewExecutor(echoComponents())
	_, err := exec.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilGraph)
}

// TestRun_GraphConsumed tests that a graph cannot run twice.
func TestRun_GraphConsumed(t *testing.T) {
	exec := NewExecutor(echoComponents())
	g := mustBuild(t, linearPayload())

	runGraph(t, exec, g)

	_, err := exec.Run(context.Background(), g)
	assert.ErrorIs(t, err, ErrGraphConsumed)
}

// TestRunSync tests the blocking convenience wrapper.
func TestRunSync(t *testing.T) {
	exec := NewExecutor(echoComponents())
	g := mustBuild(t, linearPayload())

	result, err := exec.RunSync(context.Background(), g)
	require.NoError(t, err)
	require.NoError(t, result.Err)
	assert.Contains(t, result.Outputs, "c")
}

// TestRun_EventOrdering tests per-vertex started-before-built ordering and
// monotone lifecycle within the stream.
func TestRun_EventOrdering(t *testing.T) {
	exec := NewExecutor(echoComponents(), WithMaxWorkers(1))
	g := mustBuild(t, linearPayload())

	events, _ := runGraph(t, exec, g)

	started := make(map[string]int)
	for i, evt := range events {
		switch evt.Type {
		case EventVertexStarted:
			started[evt.VertexID] = i
		case EventVertexBuilt:
			idx, ok := started[evt.VertexID]
			require.True(t, ok, "built before started for %s", evt.VertexID)
			assert.Less(t, idx, i)
		}
	}
}

// TestRun_MaxWorkersBoundsConcurrency tests the build concurrency bound.
func TestRun_MaxWorkersBoundsConcurrency(t *testing.T) {
	var mu struct {
		cur, peak int
		l         chan struct{}
	}
	mu.l = make(chan struct{}, 1)
	mu.l <- struct{}{}

	c := NewComponents()
	c.Register("echo", BuilderFunc(func(ctx Context, req *BuildRequest, sched Scheduler) (map[string]any, error) {
		<-mu.l
		mu.cur++
		if mu.cur > mu.peak {
			mu.peak = mu.cur
		}
		mu.l <- struct{}{}

		time.Sleep(10 * time.Millisecond)

		<-mu.l
		mu.cur--
		mu.l <- struct{}{}
		return map[string]any{}, nil
	}))

	nodes := make([]NodePayload, 6)
	for i := range nodes {
		id := string(rune('a' + i))
		nodes[i] = NodePayload{ID: id, Slug: id, Kind: "echo"}
	}
	exec := NewExecutor(c, WithMaxWorkers(2))
	g := mustBuild(t, FlowPayload{Nodes: nodes})

	_, result := runGraph(t, exec, g)

	require.NoError(t, result.Err)
	assert.LessOrEqual(t, mu.peak, 2)
}
