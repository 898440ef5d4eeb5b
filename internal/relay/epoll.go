package relay

import (
	"github.com/Yonle/go-epoll"
	"golang.org/x/sys/unix"
)

// epollMux keeps a level-triggered interest list and reconciles it with the
// watch set on every Wait.
type epollMux struct {
	e      *epoll.Instance
	events []unix.EpollEvent
	known  map[int]struct{}
	seen   map[int]struct{}
	ready  []int
}

func newEpollMux() (*epollMux, error) {
	e, err := epoll.NewInstance(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollMux{
		e:     e,
		known: make(map[int]struct{}),
		seen:  make(map[int]struct{}),
	}, nil
}

func (m *epollMux) Wait(watch []int) ([]int, error) {
	clear(m.seen)
	for _, fd := range watch {
		m.seen[fd] = struct{}{}
		if _, ok := m.known[fd]; ok {
			continue
		}
		ev := epoll.MakeEvent(fd, (unix.EPOLLIN | unix.EPOLLRDHUP))
		if err := m.e.Add(fd, ev); err != nil {
			return nil, err
		}
		m.known[fd] = struct{}{}
	}
	for fd := range m.known {
		if _, ok := m.seen[fd]; !ok {
			m.e.Del(fd, nil)
			delete(m.known, fd)
		}
	}

	size := max(len(watch), 1)
	if cap(m.events) < size {
		m.events = make([]unix.EpollEvent, size)
	}
	events := m.events[:size]

	var (
		n   int
		err error
	)
	for {
		n, err = m.e.Wait(events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}

	m.ready = m.ready[:0]
	for i := 0; i < n; i++ {
		m.ready = append(m.ready, int(events[i].Fd))
	}
	return m.ready, nil
}

// Forget runs after close, which already dropped fd from the kernel's
// interest list.
func (m *epollMux) Forget(fd int) {
	delete(m.known, fd)
}

func (m *epollMux) Close() error {
	return unix.Close(m.e.Fd)
}
