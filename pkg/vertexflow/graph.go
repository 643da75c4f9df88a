package vertexflow

import "sort"

// Graph is the object form of one flow instance: the vertices and edges plus
// the live scheduling state and the mutation dispatcher. A Graph is created
// per execution request (or reused through a session cache) and supports
// exactly one run.
type Graph struct {
	vertices map[string]*Vertex
	bySlug   map[string]*Vertex
	order    []string // vertex ids in payload order
	edges    []Edge
	incoming map[string][]Edge

	outputs []string // declared output vertex ids; empty means sinks

	run        *RunManager
	dispatcher *Dispatcher

	consumed bool
}

// Vertex returns the vertex with the given id, or nil.
func (g *Graph) Vertex(id string) *Vertex {
	return g.vertices[id]
}

// VertexBySlug returns the vertex with the given slug, or nil.
func (g *Graph) VertexBySlug(slug string) *Vertex {
	return g.bySlug[slug]
}

// VertexIDs returns every vertex id in payload order.
func (g *Graph) VertexIDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Edges returns the declared edges.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// RunManager returns the scheduling state owned by this graph.
func (g *Graph) RunManager() *RunManager {
	return g.run
}

// Dispatcher returns the mutation event dispatcher owned by this graph.
// Register observers here before calling Run.
func (g *Graph) Dispatcher() *Dispatcher {
	return g.dispatcher
}

// OutputsOf returns the outputs of the vertex with the given slug, and
// whether that slug exists in the graph. The outputs map is nil until the
// vertex has been built. It implements ref.Source.
func (g *Graph) OutputsOf(slug string) (map[string]any, bool) {
	v := g.bySlug[slug]
	if v == nil {
		return nil, false
	}
	return v.outputs, true
}

// OutputVertices returns the vertices whose outputs form the final result of
// a run: the declared output vertices, or every sink vertex when none were
// declared. Sorted by id.
func (g *Graph) OutputVertices() []*Vertex {
	var ids []string
	if len(g.outputs) > 0 {
		ids = append(ids, g.outputs...)
	} else {
		hasOutgoing := make(map[string]bool)
		for _, e := range g.edges {
			hasOutgoing[e.SourceID] = true
		}
		for _, id := range g.order {
			if !hasOutgoing[id] {
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)

	out := make([]*Vertex, 0, len(ids))
	for _, id := range ids {
		if v := g.vertices[id]; v != nil {
			out = append(out, v)
		}
	}
	return out
}

// Statuses returns the current status of every vertex, keyed by id.
func (g *Graph) Statuses() map[string]Status {
	out := make(map[string]Status, len(g.vertices))
	for id, v := range g.vertices {
		out[id] = v.status
	}
	return out
}

// Snapshot returns a copy of the scheduling state together with per-vertex
// statuses. Used by journaling and tests.
func (g *Graph) Snapshot() GraphSnapshot {
	return GraphSnapshot{
		Run:      g.run.Snapshot(),
		Statuses: g.Statuses(),
	}
}

// GraphSnapshot couples one RunSnapshot with the vertex statuses at the same
// instant.
type GraphSnapshot struct {
	Run      *RunSnapshot      `json:"run"`
	Statuses map[string]Status `json:"statuses"`
}

// incomingEdges returns the declared edges targeting the given vertex.
func (g *Graph) incomingEdges(id string) []Edge {
	return g.incoming[id]
}
