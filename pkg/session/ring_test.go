package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingCursorConvention(t *testing.T) {
	r := NewRing(1024)

	assert.Equal(t, int64(0), r.Latest())
	assert.Equal(t, int64(0), r.Oldest())

	assert.Equal(t, int64(5), r.Append([]byte("hello")))
	assert.Equal(t, int64(5), r.Latest())
	assert.Equal(t, int64(1), r.Oldest())

	assert.Equal(t, int64(11), r.Append([]byte(" world")))
	assert.Equal(t, int64(5), r.Append(nil), "empty append returns the current cursor")
}

func TestRingReadSince(t *testing.T) {
	r := NewRing(1024)
	r.Append([]byte("hello"))
	r.Append([]byte(" world"))

	chunk, end, truncated := r.ReadSince(0)
	assert.Equal(t, "hello world", string(chunk))
	assert.Equal(t, int64(11), end)
	assert.False(t, truncated)

	chunk, end, truncated = r.ReadSince(5)
	assert.Equal(t, " world", string(chunk))
	assert.Equal(t, int64(11), end)
	assert.False(t, truncated)

	chunk, end, truncated = r.ReadSince(11)
	assert.Empty(t, chunk)
	assert.Equal(t, int64(11), end)
	assert.False(t, truncated)
}

func TestRingEviction(t *testing.T) {
	r := NewRing(4)
	r.Append([]byte("abcdef"))

	// Only the last 4 bytes remain, cursors keep counting.
	assert.Equal(t, int64(6), r.Latest())
	assert.Equal(t, int64(3), r.Oldest())

	chunk, end, truncated := r.ReadSince(0)
	assert.Equal(t, "cdef", string(chunk))
	assert.Equal(t, int64(6), end)
	assert.True(t, truncated, "cursors 1..2 fell below the horizon")

	chunk, _, truncated = r.ReadSince(2)
	assert.Equal(t, "cdef", string(chunk))
	assert.False(t, truncated, "cursor 2 is exactly the horizon")

	chunk, _, truncated = r.ReadSince(4)
	assert.Equal(t, "ef", string(chunk))
	assert.False(t, truncated)
}

func TestRingReadSinceEmpty(t *testing.T) {
	r := NewRing(4)

	chunk, end, truncated := r.ReadSince(0)
	assert.Empty(t, chunk)
	assert.Equal(t, int64(0), end)
	assert.False(t, truncated)

	// Everything evicted: the whole requested range is gone.
	big := NewRing(2)
	big.Append([]byte("abcd"))
	chunk, end, truncated = big.ReadSince(0)
	require.Equal(t, "cd", string(chunk))
	assert.Equal(t, int64(4), end)
	assert.True(t, truncated)
}
