package journal

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory journal for testing and single-process use.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string][]Record
	closed bool
}

// NewMemoryStore creates a new in-memory journal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string][]Record),
	}
}

// Append implements Store.
func (m *MemoryStore) Append(runID string, step uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	// Copy data to avoid retaining the caller's slice.
	stored := make([]byte, len(data))
	copy(stored, data)

	m.runs[runID] = append(m.runs[runID], Record{
		RunID:     runID,
		Step:      step,
		Timestamp: time.Now().UTC(),
		Data:      stored,
	})
	return nil
}

// List implements Store.
func (m *MemoryStore) List(runID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	records := m.runs[runID]
	out := make([]Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

// DeleteRun implements Store.
func (m *MemoryStore) DeleteRun(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.runs, runID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.runs = nil
	return nil
}
