package relay

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// step runs one iteration of the dispatch loop: wait, then handle either the
// listener or the ready clients, never both.
func (s *Server) step() error {
	s.watch = append(s.watch[:0], s.wake[0], s.ln.Fd)
	s.watch = s.reg.Fds(s.watch)

	ready, err := s.mux.Wait(s.watch)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMultiplex, err)
	}

	clear(s.ready)
	for _, fd := range ready {
		s.ready[fd] = struct{}{}
	}

	if _, ok := s.ready[s.wake[0]]; ok {
		s.drainWake()
		return ErrServerClosed
	}

	if _, ok := s.ready[s.ln.Fd]; ok {
		s.acceptClient()
		return nil
	}

	// Resolve descriptors to indexes at dispatch time: a broadcast can remove
	// clients and shift everyone behind them.
	s.due = s.due[:0]
	for _, c := range s.reg.All() {
		if _, ok := s.ready[c.Fd]; ok {
			s.due = append(s.due, c.Fd)
		}
	}
	for _, fd := range s.due {
		if i, ok := s.reg.IndexOf(fd); ok {
			s.handleReadable(i)
		}
	}
	return nil
}

func (s *Server) drainWake() {
	var b [16]byte
	for {
		if n, err := unix.Read(s.wake[0], b[:]); n <= 0 || err != nil {
			return
		}
	}
}

func (s *Server) acceptClient() {
	fd, addr, err := s.accept()
	if err != nil {
		s.logger.Error("accept failed", "err", err)
		return
	}

	if s.reg.Full() {
		unix.Close(fd)
		s.logger.Warn("connection refused", "fd", fd, "addr", addr, "max", s.reg.Cap())
		return
	}

	// a descriptor the backend cannot watch would fail the next Wait
	if l, ok := s.mux.(fdLimiter); ok && !l.Fits(fd) {
		unix.Close(fd)
		s.logger.Warn("connection refused", "fd", fd, "addr", addr, "reason", "descriptor out of range")
		return
	}

	if _, err := s.reg.Add(Client{Fd: fd, Addr: addr}); err != nil {
		unix.Close(fd)
		s.logger.Error("register failed", "fd", fd, "addr", addr, "err", err)
		return
	}
	s.logger.Info("client connected", "fd", fd, "addr", addr, "clients", s.reg.Len())
}

func (s *Server) removeClient(i int, reason string) {
	c, err := s.reg.Remove(i)
	if err != nil {
		s.logger.Error("remove failed", "index", i, "err", err)
		return
	}
	s.mux.Forget(c.Fd)
	s.logger.Info("client disconnected", "fd", c.Fd, "addr", c.Addr, "reason", reason, "clients", s.reg.Len())
}
