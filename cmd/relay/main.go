// Command relay runs a TCP relay that forwards every chunk a client sends to
// all connected clients.
//
//	relay -p 9090 -c 2
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/sys/unix"

	"github.com/Citronflexe/universal-server/internal/relay"
)

func main() {
	os.Exit(run(filepath.Base(os.Args[0]), os.Args[1:]))
}

func run(program string, args []string) int {
	cfg, err := parseConfig(program, args, color.Error)
	if err != nil {
		if !errors.Is(err, errUsage) {
			color.Red("%s: %v", program, err)
		}
		return 0
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	srv, err := relay.New(cfg.Config, relay.WithLogger(logger))
	if err != nil {
		color.Red("%s: %v", program, err)
		return 0
	}
	defer srv.Close()

	color.Cyan("The server is running with socket %d on port %d", srv.Fd(), cfg.Port)
	color.Cyan("The server is limited to %d simultaneous connections", srv.MaxClients())
	logger.Debug("started", "host", cfg.Host, "port", cfg.Port, "max_clients", cfg.MaxClients, "backend", cfg.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = srv.Serve(ctx)
	if errors.Is(err, relay.ErrServerClosed) {
		logger.Info("stopped")
		return 0
	}

	logger.Error("dispatch loop failed", "err", err)
	return exitCode(err)
}

// exitCode maps a fatal error to the errno behind it.
func exitCode(err error) int {
	var errno unix.Errno
	if errors.As(err, &errno) && errno != 0 {
		return int(errno)
	}
	return 1
}
