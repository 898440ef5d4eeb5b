package relay

import (
	"errors"
	"iter"
	"slices"

	"golang.org/x/sys/unix"
)

var (
	// ErrRegistryFull - returned by Add when the registry holds max clients already.
	ErrRegistryFull = errors.New("relay.Registry: registry is full")
	// ErrDuplicateClient - returned by Add when the descriptor is registered already.
	ErrDuplicateClient = errors.New("relay.Registry: client is registered already")
	// ErrIndexOutOfRange - returned by Remove for an index past the end.
	ErrIndexOutOfRange = errors.New("relay.Registry: index out of range")
)

// Client is one accepted connection.
type Client struct {
	Fd   int
	Addr string
}

// Registry keeps connected clients in accept order. Removal compacts the
// sequence, so indexes stay dense but a client's index can shift down.
// It is not safe for concurrent use; the dispatch loop owns it.
type Registry struct {
	clients []Client
	max     int
}

func NewRegistry(max int) *Registry {
	return &Registry{
		clients: make([]Client, 0, max),
		max:     max,
	}
}

func (r *Registry) Len() int { return len(r.clients) }

func (r *Registry) Cap() int { return r.max }

func (r *Registry) Full() bool { return len(r.clients) >= r.max }

func (r *Registry) At(i int) Client { return r.clients[i] }

// IndexOf returns the current index of the client owning fd.
func (r *Registry) IndexOf(fd int) (int, bool) {
	i := slices.IndexFunc(r.clients, func(c Client) bool { return c.Fd == fd })
	return i, i >= 0
}

// Add appends c and returns its index.
func (r *Registry) Add(c Client) (int, error) {
	if r.Full() {
		return -1, ErrRegistryFull
	}
	if _, ok := r.IndexOf(c.Fd); ok {
		return -1, ErrDuplicateClient
	}
	r.clients = append(r.clients, c)
	return len(r.clients) - 1, nil
}

// Remove closes the client's descriptor and erases it, shifting every later
// client down by one.
func (r *Registry) Remove(i int) (Client, error) {
	if i < 0 || i >= len(r.clients) {
		return Client{}, ErrIndexOutOfRange
	}
	c := r.clients[i]
	unix.Close(c.Fd)
	r.clients = slices.Delete(r.clients, i, i+1)
	return c, nil
}

// All yields (index, client) pairs in storage order.
func (r *Registry) All() iter.Seq2[int, Client] {
	return func(yield func(int, Client) bool) {
		for i := 0; i < len(r.clients); i++ {
			if !yield(i, r.clients[i]) {
				return
			}
		}
	}
}

// Fds appends every registered descriptor to dst.
func (r *Registry) Fds(dst []int) []int {
	for _, c := range r.clients {
		dst = append(dst, c.Fd)
	}
	return dst
}
