// Package logging configures the process wide zerolog logger and keeps
// a ring buffer of recent entries for the admin API.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	// Level is the minimum level, "debug", "info", "warn" or "error".
	Level string
	// Output is where log lines are written, defaults to os.Stdout.
	Output io.Writer
	// Service is attached to every log entry.
	Service string
	// BufferSize is the number of recent entries retained, defaults to 500.
	BufferSize int
}

var (
	mu     sync.RWMutex
	base   = zerolog.New(os.Stdout).With().Timestamp().Logger()
	recent = NewBuffer(defaultBufferSize)
)

// Configure (re)initialises the global logger.
func Configure(cfg Config) {
	SetLevel(cfg.Level)
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stdout
	}
	service := cfg.Service
	if service == "" {
		service = "stashfin"
	}

	mu.Lock()
	defer mu.Unlock()
	if cfg.BufferSize > 0 {
		recent = NewBuffer(cfg.BufferSize)
	}
	base = zerolog.New(zerolog.MultiLevelWriter(writer, recent)).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// SetLevel changes the global level, unknown levels are ignored.
func SetLevel(level string) {
	if level == "" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return
	}
	if parsed, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(parsed)
	}
}

// Base returns the configured base logger.
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}

// Recent returns the buffer holding recent log entries.
func Recent() *Buffer {
	mu.RLock()
	defer mu.RUnlock()
	return recent
}

// OpenOutput resolves a logfile option into a writer. "stdout" or empty
// selects standard output, "none" discards everything, anything else is
// opened as an append-only file.
func OpenOutput(logfile string) (io.Writer, func() error, error) {
	switch logfile {
	case "", "stdout":
		return os.Stdout, func() error { return nil }, nil
	case "none":
		return io.Discard, func() error { return nil }, nil
	}
	f, err := os.OpenFile(logfile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
