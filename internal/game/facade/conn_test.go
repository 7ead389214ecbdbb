package facade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConn_PushIsNonBlocking(t *testing.T) {
	c := NewConn("urn:game:abc", "u1", 1)
	require.NoError(t, c.Push([]byte("a")))
	assert.ErrorIs(t, c.Push([]byte("b")), ErrBufferFull)

	assert.Equal(t, []byte("a"), <-c.Events())
	assert.NoError(t, c.Push([]byte("c")))
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	c := NewConn("urn:game:abc", "u1", 0)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, c.IsClosed())
	assert.ErrorIs(t, c.Push([]byte("a")), ErrConnClosed)

	_, ok := <-c.Events()
	assert.False(t, ok)
}

func TestRegistry_AddRemove(t *testing.T) {
	r := NewRegistry()
	a := NewConn("urn:game:abc", "u1", 0)
	b := NewConn("urn:game:abc", "u2", 0)
	other := NewConn("urn:game:def", "u3", 0)
	r.Add(a)
	r.Add(b)
	r.Add(other)

	assert.Equal(t, 2, r.Count("urn:game:abc"))
	assert.Equal(t, 3, r.Len())
	assert.True(t, r.Remove(a))
	assert.False(t, r.Remove(a))
	assert.Len(t, r.Conns("urn:game:abc"), 1)

	r.CloseAll()
	assert.Equal(t, 0, r.Len())
	assert.True(t, b.IsClosed())
	assert.True(t, other.IsClosed())
}
