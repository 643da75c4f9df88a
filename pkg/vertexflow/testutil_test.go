package vertexflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// Payload builders used across tests

// linearPayload builds a -> b -> c.
func linearPayload() FlowPayload {
	return FlowPayload{
		Nodes: []NodePayload{
			{ID: "a", Slug: "a", Kind: "echo", Params: map[string]any{"value": "A"}},
			{ID: "b", Slug: "b", Kind: "echo", Params: map[string]any{"value": "B"}},
			{ID: "c", Slug: "c", Kind: "echo", Params: map[string]any{"value": "C"}},
		},
		Edges: []EdgePayload{
			{SourceID: "a", SourceOutput: "value", TargetID: "b", TargetParam: "in"},
			{SourceID: "b", SourceOutput: "value", TargetID: "c", TargetParam: "in"},
		},
	}
}

// diamondPayload builds a -> {b, c} -> d.
func diamondPayload() FlowPayload {
	return FlowPayload{
		Nodes: []NodePayload{
			{ID: "a", Slug: "a", Kind: "echo", Params: map[string]any{"value": "A"}},
			{ID: "b", Slug: "b", Kind: "echo", Params: map[string]any{"value": "B"}},
			{ID: "c", Slug: "c", Kind: "echo", Params: map[string]any{"value": "C"}},
			{ID: "d", Slug: "d", Kind: "echo", Params: map[string]any{"value": "D"}},
		},
		Edges: []EdgePayload{
			{SourceID: "a", SourceOutput: "value", TargetID: "b", TargetParam: "left"},
			{SourceID: "a", SourceOutput: "value", TargetID: "c", TargetParam: "right"},
			{SourceID: "b", SourceOutput: "value", TargetID: "d", TargetParam: "left"},
			{SourceID: "c", SourceOutput: "value", TargetID: "d", TargetParam: "right"},
		},
	}
}

// mustBuild builds a payload into a graph, failing the test on error.
func mustBuild(t *testing.T, payload FlowPayload) *Graph {
	t.Helper()
	g, err := BuildGraph(payload)
	require.NoError(t, err)
	return g
}

// Builders used across tests

// echoBuilder publishes the vertex's resolved params as its outputs.
func echoBuilder() Builder {
	return BuilderFunc(func(ctx Context, req *BuildRequest, sched Scheduler) (map[string]any, error) {
		out := make(map[string]any, len(req.Params))
		for k, v := range req.Params {
			out[k] = v
		}
		return out, nil
	})
}

// tracker records build order from concurrent workers.
type tracker struct {
	mu    sync.Mutex
	order []string
}

func (tr *tracker) record(id string) {
	tr.mu.Lock()
	tr.order = append(tr.order, id)
	tr.mu.Unlock()
}

func (tr *tracker) snapshot() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]string, len(tr.order))
	copy(out, tr.order)
	return out
}

// trackingBuilder records each built vertex id, then echoes its params.
func trackingBuilder(tr *tracker) Builder {
	return BuilderFunc(func(ctx Context, req *BuildRequest, sched Scheduler) (map[string]any, error) {
		tr.record(req.VertexID)
		out := make(map[string]any, len(req.Params))
		for k, v := range req.Params {
			out[k] = v
		}
		return out, nil
	})
}

// failingBuilder returns the given error from every build.
func failingBuilder(err error) Builder {
	return BuilderFunc(func(ctx Context, req *BuildRequest, sched Scheduler) (map[string]any, error) {
		return nil, err
	})
}

// loopBuilder requeues itself until the given iteration count is reached,
// publishing the current iteration as "count".
func loopBuilder(iterations int) Builder {
	return BuilderFunc(func(ctx Context, req *BuildRequest, sched Scheduler) (map[string]any, error) {
		if req.Iteration < iterations {
			sched.RequeueSelf()
		}
		return map[string]any{"count": req.Iteration}, nil
	})
}

// echoComponents registers the echo builder under the "echo" kind.
func echoComponents() *Components {
	c := NewComponents()
	c.Register("echo", echoBuilder())
	return c
}

// runGraph runs a graph to completion and returns the collected stream plus
// the terminal result.
func runGraph(t *testing.T, exec *Executor, g *Graph, opts ...RunOption) ([]Event, *RunResult) {
	t.Helper()
	events, err := exec.Run(context.Background(), g, opts...)
	require.NoError(t, err)

	var collected []Event
	var result *RunResult
	for evt := range events {
		collected = append(collected, evt)
		if evt.Type == EventRunCompleted {
			result = evt.Result
		}
	}
	require.NotNil(t, result, "stream closed without completion event")
	return collected, result
}

// eventsOfType filters the stream by event type.
func eventsOfType(events []Event, typ EventType) []Event {
	var out []Event
	for _, evt := range events {
		if evt.Type == typ {
			out = append(out, evt)
		}
	}
	return out
}

// errBoom is a reusable build failure.
var errBoom = errors.New("boom")
