package relay

import (
	"golang.org/x/sys/unix"
)

type pollMux struct {
	fds   []unix.PollFd
	ready []int
}

func (m *pollMux) Wait(watch []int) ([]int, error) {
	m.fds = m.fds[:0]
	for _, fd := range watch {
		m.fds = append(m.fds, unix.PollFd{
			Fd:     int32(fd),
			Events: unix.POLLIN,
		})
	}

	for {
		_, err := unix.Poll(m.fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}

	m.ready = m.ready[:0]
	for _, f := range m.fds {
		if f.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			m.ready = append(m.ready, int(f.Fd))
		}
	}
	return m.ready, nil
}

func (m *pollMux) Forget(int) {}

func (m *pollMux) Close() error { return nil }
