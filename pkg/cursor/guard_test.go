package cursor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveFirstCursorAlwaysAccepted(t *testing.T) {
	g := NewGuard()

	res := g.Observe("s1", 0)
	assert.True(t, res.Accepted)
	assert.Nil(t, res.Previous)

	// Even a large first cursor is fine: the stream may resume mid-flight.
	res = g.Observe("s2", 9000)
	assert.True(t, res.Accepted)
	assert.Nil(t, res.Previous)
}

func TestObserveMonotonicity(t *testing.T) {
	g := NewGuard()

	require.True(t, g.Observe("s1", 10).Accepted)

	res := g.Observe("s1", 10)
	assert.False(t, res.Accepted, "duplicate cursor must be rejected")
	require.NotNil(t, res.Previous)
	assert.Equal(t, int64(10), *res.Previous)

	res = g.Observe("s1", 5)
	assert.False(t, res.Accepted, "regression must be rejected")
	require.NotNil(t, res.Previous)
	assert.Equal(t, int64(10), *res.Previous)

	res = g.Observe("s1", 11)
	assert.True(t, res.Accepted)
	require.NotNil(t, res.Previous)
	assert.Equal(t, int64(10), *res.Previous)
}

func TestKeysAreIndependent(t *testing.T) {
	g := NewGuard()

	require.True(t, g.Observe("a", 100).Accepted)
	assert.True(t, g.Observe("b", 1).Accepted)
	assert.False(t, g.Observe("a", 50).Accepted)
	assert.True(t, g.Observe("b", 2).Accepted)
}

func TestLast(t *testing.T) {
	g := NewGuard()

	assert.Nil(t, g.Last("s1"))

	g.Observe("s1", 7)
	g.Observe("s1", 3) // rejected, must not move Last

	last := g.Last("s1")
	require.NotNil(t, last)
	assert.Equal(t, int64(7), *last)
}

func TestForgetResetsKey(t *testing.T) {
	g := NewGuard()

	g.Observe("s1", 42)
	g.Forget("s1")

	assert.Nil(t, g.Last("s1"))

	// A reused key starts fresh: an old cursor is a first observation again.
	res := g.Observe("s1", 5)
	assert.True(t, res.Accepted)
	assert.Nil(t, res.Previous)
}

func TestObserveConcurrent(t *testing.T) {
	g := NewGuard()

	var wg sync.WaitGroup
	accepted := make([]int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for c := int64(1); c <= 100; c++ {
				if g.Observe("shared", c).Accepted {
					accepted[n]++
				}
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, n := range accepted {
		total += n
	}
	// Every cursor value is accepted at most once across all goroutines.
	assert.LessOrEqual(t, total, 100)
	last := g.Last("shared")
	require.NotNil(t, last)
	assert.Equal(t, int64(100), *last)
}
