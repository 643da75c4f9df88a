package vertexflow

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constBuilder returns a builder producing a single fixed output.
func constBuilder(value string) Builder {
	return BuilderFunc(func(ctx Context, req *BuildRequest, sched Scheduler) (map[string]any, error) {
		return map[string]any{"value": value}, nil
	})
}

// TestComponents_RegisterReplace tests that re-registering a kind replaces
// its builder.
func TestComponents_RegisterReplace(t *testing.T) {
	c := NewComponents()
	c.Register("emit", constBuilder("old"))
	c.Register("emit", constBuilder("new"))

	b, ok := c.Lookup("emit")
	require.True(t, ok)
	out, err := b.Build(nil, &BuildRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "new", out["value"])
}

// TestComponents_ConcurrentAccess tests racing registration against lookup.
func TestComponents_ConcurrentAccess(t *testing.T) {
	c := NewComponents()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		kind := fmt.Sprintf("kind-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Register(kind, constBuilder(kind))
			_, ok := c.Lookup(kind)
			assert.True(t, ok)
			c.Kinds()
		}()
	}
	wg.Wait()

	assert.Len(t, c.Kinds(), 8)
}
