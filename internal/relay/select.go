package relay

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// fdSetSize is FD_SETSIZE on Linux.
const fdSetSize = 1024

type selectMux struct {
	ready []int
}

func (m *selectMux) Wait(watch []int) ([]int, error) {
	var rdfs unix.FdSet

	for {
		rdfs.Zero()
		maxFd := -1
		for _, fd := range watch {
			if fd >= fdSetSize {
				return nil, fmt.Errorf("relay: descriptor %d does not fit in an fd_set", fd)
			}
			rdfs.Set(fd)
			maxFd = max(maxFd, fd)
		}

		_, err := unix.Select(maxFd+1, &rdfs, nil, nil, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}

	m.ready = m.ready[:0]
	for _, fd := range watch {
		if rdfs.IsSet(fd) {
			m.ready = append(m.ready, fd)
		}
	}
	return m.ready, nil
}

// Fits reports whether fd can be placed in an fd_set.
func (m *selectMux) Fits(fd int) bool { return fd >= 0 && fd < fdSetSize }

func (m *selectMux) Forget(int) {}

func (m *selectMux) Close() error { return nil }
