// Package vertexflow provides a flow execution graph engine.
//
// A flow is described declaratively as a set of vertices (processing nodes)
// and directed edges (data dependencies). The engine validates the payload,
// computes an execution order with bounded concurrency, resolves cross-vertex
// value references embedded in parameters, and streams typed progress events
// while it runs.
//
// Core pieces:
//
//   - BuildGraph turns a FlowPayload into an immutable Graph plus the initial
//     scheduling state.
//   - RunManager owns the live scheduling state: the run queue, the
//     predecessor and successor maps, and the visited set. Every mutation is
//     broadcast as a MutationEvent, so a run can be traced and replayed.
//   - Executor drives the RunManager to completion, fanning vertex builds out
//     to a bounded worker pool while applying all scheduling mutations on a
//     single dispatch goroutine.
//   - The ref subpackage resolves "@slug.output.path" expressions against
//     already-built vertex outputs.
//   - The session subpackage memoizes graph construction per flow fingerprint.
//
// Vertices do not know how to compute anything themselves. Each vertex names
// a component kind, and the engine invokes the matching Builder registered in
// a Components registry. Builders may request another iteration of their own
// vertex through the Scheduler callback, which is how bounded loops work
// inside an otherwise acyclic scheduler.
//
// Example:
//
//	comps := vertexflow.NewComponents()
//	comps.Register("const", vertexflow.BuilderFunc(constBuilder))
//
//	graph, err := vertexflow.BuildGraph(payload)
//	if err != nil {
//	    return err
//	}
//
//	exec := vertexflow.NewExecutor(comps)
//	events, err := exec.Run(ctx, graph)
//	if err != nil {
//	    return err
//	}
//	for evt := range events {
//	    // render progress
//	}
package vertexflow
