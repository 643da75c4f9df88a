// Package journal provides persistent storage for mutation-event traces.
//
// Every scheduling mutation in a run can be journaled as one record; the
// recorded sequence is sufficient to reconstruct the final scheduling state
// from scratch (see vertexflow.Replay), which is the basis for post-mortem
// debugging of a run.
package journal

import (
	"errors"
	"time"
)

// Store persists the mutation-event trace of runs.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores one serialized event for a run. Step numbers within a
	// run are unique and increasing.
	Append(runID string, step uint64, data []byte) error

	// List returns all records for a run, ordered by step.
	// Returns an empty slice (not an error) if the run has no records.
	List(runID string) ([]Record, error)

	// DeleteRun removes all records for a run.
	// Returns nil if the run has no records.
	DeleteRun(runID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Record is one journaled mutation event.
type Record struct {
	RunID     string
	Step      uint64
	Timestamp time.Time
	Data      []byte
}

// Sentinel errors for journal operations.
var (
	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("journal store closed")
)
