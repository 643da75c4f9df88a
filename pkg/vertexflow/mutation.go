package vertexflow

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MutationOp identifies which RunManager primitive produced an event.
type MutationOp string

// RunManager mutation operations.
const (
	OpExtendQueue   MutationOp = "extend_queue"
	OpDequeue       MutationOp = "dequeue"
	OpAddDependency MutationOp = "add_dependency"
	OpMarkBuilt     MutationOp = "mark_built"
	OpRequeue       MutationOp = "requeue"
	OpPrune         MutationOp = "prune"
)

// Timing distinguishes the event emitted before a mutation is applied from
// the one emitted after. Both carry the same step number.
type Timing string

// Event timings.
const (
	TimingBefore Timing = "before"
	TimingAfter  Timing = "after"
)

// Change records the effective arguments of one mutation. Args hold the ids
// the primitive actually acted on (after filtering), so replaying the change
// stream against a fresh RunManager reproduces the exact same state.
type Change struct {
	Op   MutationOp `json:"op"`
	Args []string   `json:"args"`
}

// RunSnapshot is a point-in-time copy of RunManager state. All slices are
// sorted so two snapshots of equal state compare equal.
type RunSnapshot struct {
	Queue        []string            `json:"queue"`
	Predecessors map[string][]string `json:"predecessors"`
	Successors   map[string][]string `json:"successors"`
	Visited      []string            `json:"visited"`
}

// MutationEvent is an immutable record of one scheduling-state change.
// Events are append-only; a before/after pair shares a step number, and steps
// increase monotonically within a graph.
type MutationEvent struct {
	Op       MutationOp   `json:"op"`
	VertexID string       `json:"vertex_id,omitempty"`
	Before   *RunSnapshot `json:"before,omitempty"`
	After    *RunSnapshot `json:"after,omitempty"`
	Change   Change       `json:"change"`
	Step     uint64       `json:"step"`
	Timing   Timing       `json:"timing"`
}

// Encode serializes the event for journaling.
func (e MutationEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeMutationEvent deserializes a journaled event.
func DecodeMutationEvent(data []byte) (MutationEvent, error) {
	var e MutationEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return MutationEvent{}, fmt.Errorf("decode mutation event: %w", err)
	}
	return e, nil
}

// Observer receives every mutation event for one graph. Observers run
// synchronously on the dispatch goroutine and must be fast; an observer error
// is recorded but never stops delivery to later observers, and never aborts
// the mutation itself.
type Observer func(MutationEvent) error

// ObserverHandle identifies a registered observer for removal.
type ObserverHandle string

// ObserverError is one recorded observer failure.
type ObserverError struct {
	Handle ObserverHandle
	Step   uint64
	Time   time.Time
	Err    error
}

// Dispatcher broadcasts mutation events to registered observers, in
// registration order. Each Graph owns exactly one Dispatcher; only the
// RunManager emits through it.
//
// With zero observers registered, emitting costs only the step counter
// increment: no snapshot is taken and no event value is built.
type Dispatcher struct {
	mu        sync.Mutex
	observers []observerEntry
	errs      []ObserverError
	step      uint64
}

type observerEntry struct {
	handle ObserverHandle
	fn     Observer
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// RegisterObserver adds an observer and returns a handle for removal.
// Observers are invoked in registration order.
func (d *Dispatcher) RegisterObserver(fn Observer) ObserverHandle {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := ObserverHandle(uuid.New().String())
	d.observers = append(d.observers, observerEntry{handle: h, fn: fn})
	return h
}

// RemoveObserver detaches a previously registered observer.
// Unknown handles are ignored.
func (d *Dispatcher) RemoveObserver(h ObserverHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, entry := range d.observers {
		if entry.handle == h {
			d.observers = append(d.observers[:i], d.observers[i+1:]...)
			return
		}
	}
}

// ObserverErrors returns the per-graph log of observer failures.
func (d *Dispatcher) ObserverErrors() []ObserverError {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]ObserverError, len(d.errs))
	copy(out, d.errs)
	return out
}

// Step returns the current step counter value.
func (d *Dispatcher) Step() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.step
}

// active reports whether any observer is registered.
func (d *Dispatcher) active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.observers) > 0
}

// nextStep allocates the step number shared by one before/after pair.
func (d *Dispatcher) nextStep() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.step++
	return d.step
}

// emit delivers an event to every observer in registration order, isolating
// failures. A panicking observer is treated the same as one returning an
// error.
func (d *Dispatcher) emit(evt MutationEvent) {
	d.mu.Lock()
	entries := make([]observerEntry, len(d.observers))
	copy(entries, d.observers)
	d.mu.Unlock()

	for _, entry := range entries {
		if err := d.safeInvoke(entry.fn, evt); err != nil {
			d.mu.Lock()
			d.errs = append(d.errs, ObserverError{
				Handle: entry.handle,
				Step:   evt.Step,
				Time:   time.Now(),
				Err:    err,
			})
			d.mu.Unlock()
		}
	}
}

// safeInvoke calls an observer, converting panics into errors.
func (d *Dispatcher) safeInvoke(fn Observer, evt MutationEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return fn(evt)
}
