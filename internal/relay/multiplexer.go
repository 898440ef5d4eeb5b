package relay

import (
	"fmt"
)

// Multiplexer blocks until at least one descriptor of the watch set is
// readable. Hang-ups and socket errors count as readable so the following
// read observes them.
type Multiplexer interface {
	// Wait blocks without timeout and returns the ready descriptors. EINTR is
	// retried internally.
	Wait(watch []int) ([]int, error)
	// Forget drops fd from any persistent state. It is called after fd is
	// closed and before the number can be handed out again.
	Forget(fd int)
	Close() error
}

// fdLimiter is implemented by backends that cannot watch every descriptor
// number.
type fdLimiter interface {
	Fits(fd int) bool
}

const (
	BackendPoll   = "poll"
	BackendSelect = "select"
	BackendEpoll  = "epoll"
)

// NewMultiplexer builds the named backend. An empty name selects poll.
func NewMultiplexer(backend string) (Multiplexer, error) {
	switch backend {
	case "", BackendPoll:
		return &pollMux{}, nil
	case BackendSelect:
		return &selectMux{}, nil
	case BackendEpoll:
		return newEpollMux()
	}
	return nil, fmt.Errorf("relay.NewMultiplexer: unknown backend %q", backend)
}
