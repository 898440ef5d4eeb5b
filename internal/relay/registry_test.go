package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// socketpair returns a connected pair: the first end goes into the registry,
// the second plays the remote peer.
func socketpair(t *testing.T) (local, peer int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func collect(r *Registry) []Client {
	var got []Client
	for _, c := range r.All() {
		got = append(got, c)
	}
	return got
}

func TestRegistry_AddUpToCapacity(t *testing.T) {
	r := NewRegistry(2)
	a, _ := socketpair(t)
	b, _ := socketpair(t)
	c, _ := socketpair(t)

	i, err := r.Add(Client{Fd: a})
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	i, err = r.Add(Client{Fd: b})
	require.NoError(t, err)
	assert.Equal(t, 1, i)
	assert.True(t, r.Full())

	_, err = r.Add(Client{Fd: c})
	assert.ErrorIs(t, err, ErrRegistryFull)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 2, r.Cap())
}

func TestRegistry_AddDuplicate(t *testing.T) {
	r := NewRegistry(3)
	a, _ := socketpair(t)

	_, err := r.Add(Client{Fd: a})
	require.NoError(t, err)
	_, err = r.Add(Client{Fd: a})
	assert.ErrorIs(t, err, ErrDuplicateClient)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RemoveCompacts(t *testing.T) {
	r := NewRegistry(3)
	a, _ := socketpair(t)
	b, bPeer := socketpair(t)
	c, _ := socketpair(t)
	for _, fd := range []int{a, b, c} {
		_, err := r.Add(Client{Fd: fd})
		require.NoError(t, err)
	}

	removed, err := r.Remove(1)
	require.NoError(t, err)
	assert.Equal(t, b, removed.Fd)

	assert.Equal(t, []Client{{Fd: a}, {Fd: c}}, collect(r))
	i, ok := r.IndexOf(c)
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = r.IndexOf(b)
	assert.False(t, ok)

	// the peer of a removed client sees EOF
	n, err := unix.Read(bPeer, make([]byte, 1))
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestRegistry_RemoveOutOfRange(t *testing.T) {
	r := NewRegistry(1)
	_, err := r.Remove(0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = r.Remove(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestRegistry_AllIsRestartable(t *testing.T) {
	r := NewRegistry(4)
	var fds []int
	for range 3 {
		fd, _ := socketpair(t)
		fds = append(fds, fd)
		_, err := r.Add(Client{Fd: fd})
		require.NoError(t, err)
	}

	first := collect(r)
	second := collect(r)
	assert.Equal(t, first, second)
	assert.Equal(t, fds, r.Fds(nil))

	// early break stops the sequence
	visited := 0
	for range r.All() {
		visited++
		break
	}
	assert.Equal(t, 1, visited)
}

func TestRegistry_SizeTracksConnected(t *testing.T) {
	r := NewRegistry(5)
	for range 5 {
		fd, _ := socketpair(t)
		_, err := r.Add(Client{Fd: fd})
		require.NoError(t, err)
	}
	for r.Len() > 0 {
		before := r.Len()
		_, err := r.Remove(before - 1)
		require.NoError(t, err)
		assert.Equal(t, before-1, r.Len())
	}
	assert.False(t, r.Full())
}
