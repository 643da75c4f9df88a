package vertexflow

import (
	"errors"
	"fmt"
)

// BuildGraph validates a flow payload and produces the Graph plus its
// initial scheduling state.
//
// Validation checks (in order):
//  1. The payload has at least one node
//  2. Node ids and slugs are non-empty and unique
//  3. Every edge references two existing vertex ids
//  4. No edge is declared twice
//  5. The declared edges form no cycle
//
// All failures are fatal: no Graph is returned, and multiple structural
// errors are joined together. Cyclic behavior is supported only through the
// dynamic-dependency mechanism at run time, never via declared edges.
func BuildGraph(payload FlowPayload) (*Graph, error) {
	if len(payload.Nodes) == 0 {
		return nil, ErrEmptyFlow
	}

	g := &Graph{
		vertices: make(map[string]*Vertex, len(payload.Nodes)),
		bySlug:   make(map[string]*Vertex, len(payload.Nodes)),
		incoming: make(map[string][]Edge),
		outputs:  payload.Outputs,
	}

	var errs []error

	for _, n := range payload.Nodes {
		if n.ID == "" || n.Slug == "" {
			errs = append(errs, fmt.Errorf("node %q: id and slug are required", n.ID))
			continue
		}
		if _, exists := g.vertices[n.ID]; exists {
			errs = append(errs, fmt.Errorf("duplicate vertex id %q", n.ID))
			continue
		}
		if prev, exists := g.bySlug[n.Slug]; exists {
			errs = append(errs, &DuplicateSlugError{Slug: n.Slug, FirstID: prev.id, SecondID: n.ID})
			continue
		}
		v := &Vertex{
			id:     n.ID,
			slug:   n.Slug,
			kind:   n.Kind,
			params: n.Params,
			status: StatusPending,
		}
		g.vertices[n.ID] = v
		g.bySlug[n.Slug] = v
		g.order = append(g.order, n.ID)
	}

	seen := make(map[EdgePayload]bool, len(payload.Edges))
	for _, e := range payload.Edges {
		if _, ok := g.vertices[e.SourceID]; !ok {
			errs = append(errs, &DanglingEdgeError{Edge: e, MissingID: e.SourceID})
			continue
		}
		if _, ok := g.vertices[e.TargetID]; !ok {
			errs = append(errs, &DanglingEdgeError{Edge: e, MissingID: e.TargetID})
			continue
		}
		if seen[e] {
			errs = append(errs, &DuplicateEdgeError{Edge: e})
			continue
		}
		seen[e] = true

		edge := Edge{
			SourceID:     e.SourceID,
			SourceOutput: e.SourceOutput,
			TargetID:     e.TargetID,
			TargetParam:  e.TargetParam,
		}
		g.edges = append(g.edges, edge)
		g.incoming[e.TargetID] = append(g.incoming[e.TargetID], edge)
	}

	for _, id := range g.outputs {
		if _, ok := g.vertices[id]; !ok {
			errs = append(errs, fmt.Errorf("declared output vertex %q does not exist", id))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if cycle := findCycle(g); cycle != nil {
		return nil, &StaticCycleError{Cycle: cycle}
	}

	g.dispatcher = NewDispatcher()
	g.run = newRunManager(g.dispatcher)
	seedRunState(g)

	return g, nil
}

// seedRunState derives the initial predecessor/successor maps from the
// declared edges and queues every vertex with no predecessors, in payload
// order. Seeding goes through the RunManager primitives so the mutation
// event stream describes the state from scratch.
func seedRunState(g *Graph) {
	for _, e := range g.edges {
		g.run.AddDynamicDependency(e.TargetID, e.SourceID)
	}

	roots := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if len(g.run.preds[id]) == 0 {
			roots = append(roots, id)
		}
	}
	g.run.ExtendRunQueue(roots)

	for _, id := range g.run.Queue() {
		g.vertices[id].status = StatusReady
	}
}

// findCycle runs a three-color depth-first search over the declared edges and
// returns the vertex ids of the first cycle found, in order, or nil.
func findCycle(g *Graph) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // fully explored
	)

	color := make(map[string]int, len(g.vertices))
	next := make(map[string][]string)
	for _, e := range g.edges {
		next[e.SourceID] = append(next[e.SourceID], e.TargetID)
	}

	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)

		for _, t := range next[id] {
			switch color[t] {
			case gray:
				// Found a back edge; slice the cycle out of the path.
				for i, s := range stack {
					if s == t {
						cycle = append(cycle, stack[i:]...)
						cycle = append(cycle, t)
						return true
					}
				}
			case white:
				if visit(t) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range g.order {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}
