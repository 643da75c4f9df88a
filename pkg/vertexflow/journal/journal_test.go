package journal

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories builds each Store implementation for shared tests.
var storeFactories = map[string]func(t *testing.T) Store{
	"memory": func(t *testing.T) Store {
		return NewMemoryStore()
	},
	"sqlite": func(t *testing.T) Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
		require.NoError(t, err)
		return s
	},
}

// TestStore_AppendList tests ordered append and readback for every backend.
func TestStore_AppendList(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()

			for step := uint64(1); step <= 3; step++ {
				require.NoError(t, s.Append("run-1", step, []byte(fmt.Sprintf("event-%d", step))))
			}
			require.NoError(t, s.Append("run-2", 1, []byte("other")))

			records, err := s.List("run-1")
			require.NoError(t, err)
			require.Len(t, records, 3)
			for i, rec := range records {
				assert.Equal(t, "run-1", rec.RunID)
				assert.Equal(t, uint64(i+1), rec.Step)
				assert.Equal(t, []byte(fmt.Sprintf("event-%d", i+1)), rec.Data)
				assert.False(t, rec.Timestamp.IsZero())
			}
		})
	}
}

// TestStore_ListUnknownRun tests that an unknown run yields an empty slice.
func TestStore_ListUnknownRun(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()

			records, err := s.List("nope")
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

// TestStore_DeleteRun tests removal of one run's records.
func TestStore_DeleteRun(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()

			require.NoError(t, s.Append("run-1", 1, []byte("a")))
			require.NoError(t, s.Append("run-2", 1, []byte("b")))

			require.NoError(t, s.DeleteRun("run-1"))
			require.NoError(t, s.DeleteRun("run-1")) // idempotent

			records, err := s.List("run-1")
			require.NoError(t, err)
			assert.Empty(t, records)

			records, err = s.List("run-2")
			require.NoError(t, err)
			assert.Len(t, records, 1)
		})
	}
}

// TestStore_Closed tests operations after Close.
func TestStore_Closed(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			require.NoError(t, s.Close())

			assert.ErrorIs(t, s.Append("run", 1, []byte("x")), ErrStoreClosed)
			_, err := s.List("run")
			assert.ErrorIs(t, err, ErrStoreClosed)
			assert.ErrorIs(t, s.DeleteRun("run"), ErrStoreClosed)
		})
	}
}

// TestSQLiteStore_Reopen tests persistence across reopen.
func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append("run-1", 1, []byte("persisted")))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	records, err := s.List("run-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []byte("persisted"), records[0].Data)
}
