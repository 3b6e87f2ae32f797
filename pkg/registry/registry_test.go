package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := NewBaseRegistry[int]()

	require.NoError(t, r.Register("a", 1))
	assert.Error(t, r.Register("a", 2), "duplicate names are rejected")
	assert.Error(t, r.Register("", 3))

	v, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestSetReplaces(t *testing.T) {
	r := NewBaseRegistry[string]()

	require.NoError(t, r.Set("k", "v1"))
	require.NoError(t, r.Set("k", "v2"))
	assert.Error(t, r.Set("", "x"))

	v, _ := r.Get("k")
	assert.Equal(t, "v2", v)
	assert.Equal(t, 1, r.Count())
}

func TestRemoveAndClear(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Set("a", 1))
	require.NoError(t, r.Set("b", 2))

	require.NoError(t, r.Remove("a"))
	assert.Error(t, r.Remove("a"))
	assert.Equal(t, 1, r.Count())

	r.Clear()
	assert.Zero(t, r.Count())
}

func TestNamesSorted(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Set("zeta", 1))
	require.NoError(t, r.Set("alpha", 2))
	require.NoError(t, r.Set("mid", 3))

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Names())
	assert.Len(t, r.List(), 3)
}

func TestConcurrentAccess(t *testing.T) {
	r := NewBaseRegistry[int]()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = r.Set("shared", n)
			_, _ = r.Get("shared")
			_ = r.Names()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, r.Count())
}
