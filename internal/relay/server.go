// Package relay implements a single-threaded TCP relay: one dispatch loop
// waits on the listener and every client at once, accepts new connections
// and forwards each inbound chunk to all connected clients.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/Citronflexe/universal-server/internal/netfd"
)

var (
	// ErrMultiplex - the readiness wait failed; the loop cannot continue.
	ErrMultiplex = errors.New("relay.Server: multiplexer wait failed")
	// ErrServerClosed - returned by Serve after its context is cancelled.
	ErrServerClosed = errors.New("relay.Server: server closed")
)

// Server owns the listening socket, the registry and the multiplexer.
// Everything except the wake pipe write is touched only by Serve.
type Server struct {
	cfg    Config
	logger *slog.Logger

	ln   *netfd.Listener
	reg  *Registry
	mux  Multiplexer
	wake [2]int

	accept func() (int, string, error)

	buf   []byte
	watch []int
	ready map[int]struct{}
	due   []int
}

type serverOption func(s *Server) error

// WithLogger - replaces slog.Default() as the event log.
func WithLogger(logger *slog.Logger) serverOption {
	return func(s *Server) error {
		if logger == nil {
			return errors.New("relay.WithLogger: logger is nil")
		}
		s.logger = logger
		return nil
	}
}

// New binds the listening socket and prepares the dispatch loop. Socket,
// bind and listen failures are returned as netfd.ErrSocket, netfd.ErrBind
// and netfd.ErrListen.
func New(cfg Config, options ...serverOption) (*Server, error) {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
		reg:    NewRegistry(cfg.MaxClients),
		buf:    make([]byte, ChunkSize),
		ready:  make(map[int]struct{}),
		wake:   [2]int{-1, -1},
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(s); err != nil {
			return nil, err
		}
	}

	mux, err := NewMultiplexer(cfg.Backend)
	if err != nil {
		return nil, err
	}
	s.mux = mux

	if err := unix.Pipe2(s.wake[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		s.mux.Close()
		return nil, fmt.Errorf("relay.New: wake pipe: %w", err)
	}

	s.ln, err = netfd.Listen(cfg.Host, cfg.Port, cfg.MaxClients)
	if err != nil {
		s.mux.Close()
		unix.Close(s.wake[0])
		unix.Close(s.wake[1])
		return nil, err
	}
	s.accept = s.ln.Accept

	return s, nil
}

// Fd is the listening descriptor.
func (s *Server) Fd() int { return s.ln.Fd }

// Port is the bound port, useful when Config.Port was 0.
func (s *Server) Port() (int, error) { return s.ln.Port() }

// MaxClients is the effective registry capacity.
func (s *Server) MaxClients() int { return s.cfg.MaxClients }

// Serve runs the dispatch loop until ctx is cancelled, when it returns
// ErrServerClosed, or until the multiplexer fails, when the error wraps
// ErrMultiplex and the OS error.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.wakeup)
	defer stop()

	for {
		if err := s.step(); err != nil {
			return err
		}
	}
}

func (s *Server) wakeup() {
	unix.Write(s.wake[1], []byte{0})
}

// Close disconnects every client and releases the listener, the wake pipe
// and the multiplexer. It must not run concurrently with Serve.
func (s *Server) Close() error {
	for s.reg.Len() > 0 {
		s.removeClient(s.reg.Len()-1, "server closed")
	}
	errs := []error{s.ln.Close(), s.mux.Close()}
	unix.Close(s.wake[0])
	unix.Close(s.wake[1])
	return errors.Join(errs...)
}
