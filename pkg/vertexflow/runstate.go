package vertexflow

import (
	"fmt"
	"sort"
)

// RunManager is the single source of truth for what can run next.
//
// It owns the run queue (vertex ids whose predecessors are all satisfied),
// the predecessor and successor maps for the currently-known dependency set
// (declared edges plus any dynamically added ones), and the visited set of
// ids already handed out for building.
//
// Invariants:
//   - a vertex is in the queue iff its predecessor set is empty and it has
//     not yet been dequeued for building
//   - an id appears in the queue at most once
//   - the predecessor and successor maps are mutual inverses at all times
//
// RunManager is not safe for concurrent use. The executor applies every
// mutation on its single dispatch goroutine; worker goroutines never touch
// it. Every mutation emits a before event, applies, then emits an after
// event on the same step number.
type RunManager struct {
	queue   []string
	queued  map[string]struct{}
	preds   map[string]map[string]struct{}
	succs   map[string]map[string]struct{}
	visited map[string]struct{}

	dispatcher *Dispatcher
}

// newRunManager creates empty scheduling state. A nil dispatcher disables
// event emission (used by replay).
func newRunManager(d *Dispatcher) *RunManager {
	return &RunManager{
		queued:     make(map[string]struct{}),
		preds:      make(map[string]map[string]struct{}),
		succs:      make(map[string]map[string]struct{}),
		visited:    make(map[string]struct{}),
		dispatcher: d,
	}
}

// ExtendRunQueue appends the given ids to the run queue, skipping ids that
// are already queued or already visited. Visited ids re-enter the queue only
// through Requeue, the explicit loop path.
func (m *RunManager) ExtendRunQueue(ids []string) {
	eligible := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := m.queued[id]; ok {
			continue
		}
		if _, ok := m.visited[id]; ok {
			continue
		}
		eligible = append(eligible, id)
	}
	if len(eligible) == 0 {
		return
	}

	m.record(OpExtendQueue, "", eligible, func() {
		for _, id := range eligible {
			m.queue = append(m.queue, id)
			m.queued[id] = struct{}{}
		}
	})
}

// AddDynamicDependency inserts dependency into dependent's predecessor set
// and dependent into dependency's successor set, atomically in both maps.
// Once added, the scheduler treats the relation identically to a declared
// edge. This is how a loop body declares that it must run again before its
// consumers may proceed.
func (m *RunManager) AddDynamicDependency(dependent, dependency string) {
	m.record(OpAddDependency, dependent, []string{dependent, dependency}, func() {
		m.addDependency(dependent, dependency)
	})
}

// MarkBuilt removes the vertex from every successor's predecessor set, then
// queues any successor whose predecessor set became empty.
func (m *RunManager) MarkBuilt(id string) {
	m.record(OpMarkBuilt, id, []string{id}, func() {
		m.removeFromPredecessors(id)
	})

	ready := make([]string, 0, len(m.succs[id]))
	for s := range m.succs[id] {
		if len(m.preds[s]) == 0 {
			ready = append(ready, s)
		}
	}
	sort.Strings(ready)
	m.ExtendRunQueue(ready)
}

// Dequeue removes and returns the head of the run queue, adding it to the
// visited set. The executor is the only caller. Returns false when the queue
// is empty.
func (m *RunManager) Dequeue() (string, bool) {
	if len(m.queue) == 0 {
		return "", false
	}
	id := m.queue[0]

	m.record(OpDequeue, id, []string{id}, func() {
		m.dequeue(id)
	})
	return id, true
}

// Requeue re-admits a visited vertex to the run queue. This is the explicit,
// opt-in loop path: the self-dependency added by AddDynamicDependency is
// considered satisfied by the act of re-admission, and the id leaves the
// visited set so ExtendRunQueue-style filtering no longer blocks it.
func (m *RunManager) Requeue(id string) {
	m.record(OpRequeue, id, []string{id}, func() {
		m.requeue(id)
	})
}

// Prune removes the given ids from the queue and from both dependency maps,
// and marks them visited so they can never be queued again. Used to drop the
// transitive successors of a failed vertex while independent branches keep
// draining.
func (m *RunManager) Prune(ids []string) {
	if len(ids) == 0 {
		return
	}
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	m.record(OpPrune, "", sorted, func() {
		for _, id := range sorted {
			m.prune(id)
		}
	})
}

// QueueLen returns the current queue length.
func (m *RunManager) QueueLen() int { return len(m.queue) }

// Queue returns a copy of the run queue in order.
func (m *RunManager) Queue() []string {
	out := make([]string, len(m.queue))
	copy(out, m.queue)
	return out
}

// Predecessors returns the not-yet-built predecessor ids of a vertex, sorted.
func (m *RunManager) Predecessors(id string) []string {
	return sortedKeys(m.preds[id])
}

// Successors returns the dependent ids of a vertex, sorted.
func (m *RunManager) Successors(id string) []string {
	return sortedKeys(m.succs[id])
}

// Visited reports whether the vertex has been dequeued for building.
func (m *RunManager) Visited(id string) bool {
	_, ok := m.visited[id]
	return ok
}

// Snapshot returns a sorted, deep copy of the scheduling state.
func (m *RunManager) Snapshot() *RunSnapshot {
	snap := &RunSnapshot{
		Queue:        make([]string, len(m.queue)),
		Predecessors: make(map[string][]string, len(m.preds)),
		Successors:   make(map[string][]string, len(m.succs)),
		Visited:      sortedKeys(m.visited),
	}
	copy(snap.Queue, m.queue)
	for id, set := range m.preds {
		if len(set) > 0 {
			snap.Predecessors[id] = sortedKeys(set)
		}
	}
	for id, set := range m.succs {
		if len(set) > 0 {
			snap.Successors[id] = sortedKeys(set)
		}
	}
	return snap
}

// CheckSymmetry verifies that the predecessor and successor maps are mutual
// inverses for ids still awaiting a build. Visited ids are exempt: MarkBuilt
// clears a vertex from its successors' predecessor sets while its own
// successor entries stay in place as the static run map. A non-nil error
// indicates an engine bug.
func (m *RunManager) CheckSymmetry() error {
	for v, set := range m.preds {
		for d := range set {
			if _, ok := m.succs[d][v]; !ok {
				return fmt.Errorf("predecessor %s of %s missing inverse successor entry", d, v)
			}
		}
	}
	for d, set := range m.succs {
		if _, ok := m.visited[d]; ok {
			continue
		}
		for v := range set {
			if _, ok := m.preds[v][d]; !ok {
				return fmt.Errorf("successor %s of %s missing inverse predecessor entry", v, d)
			}
		}
	}
	return nil
}

// Mutation internals. Each is invoked under record() so the event stream
// carries the effective arguments; Replay calls them directly.

func (m *RunManager) addDependency(dependent, dependency string) {
	if m.preds[dependent] == nil {
		m.preds[dependent] = make(map[string]struct{})
	}
	if m.succs[dependency] == nil {
		m.succs[dependency] = make(map[string]struct{})
	}
	m.preds[dependent][dependency] = struct{}{}
	m.succs[dependency][dependent] = struct{}{}
}

func (m *RunManager) removeFromPredecessors(id string) {
	for s := range m.succs[id] {
		delete(m.preds[s], id)
	}
}

func (m *RunManager) dequeue(id string) {
	if len(m.queue) > 0 && m.queue[0] == id {
		m.queue = m.queue[1:]
	}
	delete(m.queued, id)
	m.visited[id] = struct{}{}
}

func (m *RunManager) requeue(id string) {
	delete(m.preds[id], id)
	delete(m.succs[id], id)
	delete(m.visited, id)
	if _, ok := m.queued[id]; !ok {
		m.queue = append(m.queue, id)
		m.queued[id] = struct{}{}
	}
}

func (m *RunManager) prune(id string) {
	if _, ok := m.queued[id]; ok {
		for i, qid := range m.queue {
			if qid == id {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				break
			}
		}
		delete(m.queued, id)
	}
	for p := range m.preds[id] {
		delete(m.succs[p], id)
	}
	for s := range m.succs[id] {
		delete(m.preds[s], id)
	}
	delete(m.preds, id)
	delete(m.succs, id)
	m.visited[id] = struct{}{}
}

// record emits the before event, applies the mutation, then emits the after
// event on the same step. With no observers registered, only the step counter
// advances.
func (m *RunManager) record(op MutationOp, vertexID string, args []string, mutate func()) {
	if m.dispatcher == nil {
		mutate()
		return
	}

	step := m.dispatcher.nextStep()
	change := Change{Op: op, Args: args}
	if m.dispatcher.active() {
		m.dispatcher.emit(MutationEvent{
			Op:       op,
			VertexID: vertexID,
			Before:   m.Snapshot(),
			Change:   change,
			Step:     step,
			Timing:   TimingBefore,
		})
	}

	mutate()

	if m.dispatcher.active() {
		m.dispatcher.emit(MutationEvent{
			Op:       op,
			VertexID: vertexID,
			After:    m.Snapshot(),
			Change:   change,
			Step:     step,
			Timing:   TimingAfter,
		})
	}
}

// Replay applies the change stream of recorded mutation events to a fresh
// RunManager, reproducing the final scheduling state. Only after events are
// applied; before events carry the same change and are skipped.
func Replay(events []MutationEvent) (*RunManager, error) {
	m := newRunManager(nil)
	for _, evt := range events {
		if evt.Timing != TimingAfter {
			continue
		}
		if err := m.apply(evt.Change); err != nil {
			return nil, fmt.Errorf("replay step %d: %w", evt.Step, err)
		}
	}
	return m, nil
}

// apply executes one recorded change verbatim.
func (m *RunManager) apply(c Change) error {
	switch c.Op {
	case OpExtendQueue:
		for _, id := range c.Args {
			m.queue = append(m.queue, id)
			m.queued[id] = struct{}{}
		}
	case OpDequeue:
		if len(c.Args) != 1 {
			return fmt.Errorf("dequeue expects 1 arg, got %d", len(c.Args))
		}
		m.dequeue(c.Args[0])
	case OpAddDependency:
		if len(c.Args) != 2 {
			return fmt.Errorf("add_dependency expects 2 args, got %d", len(c.Args))
		}
		m.addDependency(c.Args[0], c.Args[1])
	case OpMarkBuilt:
		if len(c.Args) != 1 {
			return fmt.Errorf("mark_built expects 1 arg, got %d", len(c.Args))
		}
		m.removeFromPredecessors(c.Args[0])
	case OpRequeue:
		if len(c.Args) != 1 {
			return fmt.Errorf("requeue expects 1 arg, got %d", len(c.Args))
		}
		m.requeue(c.Args[0])
	case OpPrune:
		for _, id := range c.Args {
			m.prune(id)
		}
	default:
		return fmt.Errorf("unknown mutation op %q", c.Op)
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
