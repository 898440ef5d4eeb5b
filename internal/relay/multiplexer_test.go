package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newMux(t *testing.T, backend string) Multiplexer {
	t.Helper()
	m, err := NewMultiplexer(backend)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestNewMultiplexer(t *testing.T) {
	m, err := NewMultiplexer("")
	require.NoError(t, err)
	assert.IsType(t, &pollMux{}, m)

	_, err = NewMultiplexer("kqueue")
	assert.Error(t, err)
}

func TestMultiplexer_ReportsReadable(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			m := newMux(t, backend)
			a, aPeer := socketpair(t)
			b, _ := socketpair(t)

			_, err := unix.Write(aPeer, []byte("x"))
			require.NoError(t, err)

			ready, err := m.Wait([]int{a, b})
			require.NoError(t, err)
			assert.Equal(t, []int{a}, ready)
		})
	}
}

func TestMultiplexer_HangupIsReadable(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			m := newMux(t, backend)
			a, _ := socketpair(t)
			b, bPeer := socketpair(t)
			require.NoError(t, unix.Close(bPeer))

			ready, err := m.Wait([]int{a, b})
			require.NoError(t, err)
			assert.Equal(t, []int{b}, ready)

			n, err := unix.Read(b, make([]byte, 1))
			assert.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestMultiplexer_WatchSetShrinks(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			m := newMux(t, backend)
			a, aPeer := socketpair(t)
			b, bPeer := socketpair(t)

			_, err := unix.Write(aPeer, []byte("x"))
			require.NoError(t, err)
			_, err = m.Wait([]int{a, b})
			require.NoError(t, err)

			// a is still readable but no longer watched
			_, err = unix.Write(bPeer, []byte("y"))
			require.NoError(t, err)
			ready, err := m.Wait([]int{b})
			require.NoError(t, err)
			assert.Equal(t, []int{b}, ready)
		})
	}
}

// A descriptor number reused after close must be watched again.
func TestMultiplexer_ForgetAfterClose(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			m := newMux(t, backend)
			keep, keepPeer := socketpair(t)

			fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
			require.NoError(t, err)
			old := fds[0]
			_, err = unix.Write(keepPeer, []byte("k"))
			require.NoError(t, err)
			_, err = m.Wait([]int{keep, old})
			require.NoError(t, err)

			unix.Close(fds[0])
			unix.Close(fds[1])
			m.Forget(old)

			reused, reusedPeer := socketpair(t)
			_, err = unix.Write(reusedPeer, []byte("r"))
			require.NoError(t, err)
			_, err = unix.Read(keep, make([]byte, 1))
			require.NoError(t, err)

			ready, err := m.Wait([]int{keep, reused})
			require.NoError(t, err)
			assert.Equal(t, []int{reused}, ready)
		})
	}
}

func TestSelectMux_DescriptorTooLarge(t *testing.T) {
	m := newMux(t, BackendSelect)
	_, err := m.Wait([]int{fdSetSize})
	assert.Error(t, err)
}

func TestSelectMux_Fits(t *testing.T) {
	m := &selectMux{}
	assert.True(t, m.Fits(0))
	assert.True(t, m.Fits(fdSetSize-1))
	assert.False(t, m.Fits(fdSetSize))
	assert.False(t, m.Fits(-1))
}

func TestEpollMux_CloseOnExec(t *testing.T) {
	m, err := newEpollMux()
	require.NoError(t, err)
	defer m.Close()

	flags, err := unix.FcntlInt(uintptr(m.e.Fd), unix.F_GETFD, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.FD_CLOEXEC)
}
