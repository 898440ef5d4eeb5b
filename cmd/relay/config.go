package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/Citronflexe/universal-server/internal/relay"
)

// Configuration - relay settings gathered from the environment and flags.
type Configuration struct {
	relay.Config
	LogLevel slog.Level
}

var errUsage = errors.New("usage")

// lookupEnv is replaced in tests.
var lookupEnv = os.LookupEnv

func usage(out io.Writer, program string) {
	fmt.Fprintf(out, "%s -p port -c [max-clients [default=%d]]\n\nOptions:\n\n", program, relay.DefaultMaxClients)
}

// parseConfig reads RELAY_* variables first and lets flags override them.
// A missing or non-positive port is errUsage; a non-positive client limit
// falls back to the default.
func parseConfig(program string, args []string, out io.Writer) (Configuration, error) {
	cfg := Configuration{LogLevel: slog.LevelInfo}
	cfg.Config.Backend = relay.BackendPoll

	var err error
	if v, ok := lookupEnv("RELAY_PORT"); ok {
		if cfg.Port, err = strconv.Atoi(v); err != nil {
			return cfg, fmt.Errorf("RELAY_PORT: %w", err)
		}
	}
	if v, ok := lookupEnv("RELAY_MAX_CLIENTS"); ok {
		if cfg.MaxClients, err = strconv.Atoi(v); err != nil {
			return cfg, fmt.Errorf("RELAY_MAX_CLIENTS: %w", err)
		}
	}
	if v, ok := lookupEnv("RELAY_HOST"); ok {
		cfg.Host = v
	}
	if v, ok := lookupEnv("RELAY_BACKEND"); ok && v != "" {
		cfg.Backend = v
	}
	if v, ok := lookupEnv("RELAY_LOG_LEVEL"); ok {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return cfg, fmt.Errorf("RELAY_LOG_LEVEL: %w", err)
		}
	}

	fs := flag.NewFlagSet(program, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		usage(out, program)
		fs.PrintDefaults()
	}
	fs.IntVar(&cfg.Port, "p", cfg.Port, "Listen port (shorthand)")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Listen port")
	fs.IntVar(&cfg.MaxClients, "c", cfg.MaxClients, "Max simultaneous clients (shorthand)")
	fs.IntVar(&cfg.MaxClients, "max-clients", cfg.MaxClients, "Max simultaneous clients")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Listen address, all IPv4 interfaces if empty")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Readiness backend: poll, select or epoll")
	fs.TextVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return cfg, errUsage
	}

	if cfg.Port <= 0 {
		fs.Usage()
		return cfg, errUsage
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = relay.DefaultMaxClients
	}
	switch cfg.Backend {
	case relay.BackendPoll, relay.BackendSelect, relay.BackendEpoll:
	default:
		return cfg, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	return cfg, nil
}
