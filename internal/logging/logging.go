// Package logging provides structured logging for ingestbench binaries.
//
// It wraps log/slog so every component logs with the same handler and a
// "component" attribute. Output goes to stderr: in the Lambda handler stdout is
// reserved for embedded-metrics lines, one per invocation.
//
//	logging.Init(slog.LevelInfo, false)
//	log := logging.Component("driver")
//	log.Info("trial finished", "function", name, "successes", ok)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	InitWithWriter(os.Stderr, level, jsonFormat)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(w io.Writer, level slog.Level, jsonFormat bool) {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	InitWithHandler(handler)
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing.
func InitWithHandler(handler slog.Handler) {
	l := slog.New(handler)
	mu.Lock()
	logger = l
	mu.Unlock()
	slog.SetDefault(l)
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func current() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(slog.LevelInfo, false)
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// With returns a new logger with additional attributes.
func With(args ...any) *slog.Logger {
	return current().With(args...)
}

// Component returns a logger for a specific component.
//
//	log := logging.Component("writer")
//	log.Info("multipart complete") // ... component=writer msg="multipart complete"
func Component(name string) *slog.Logger {
	return current().With("component", name)
}

type contextKey int

const (
	contextKeyRunID contextKey = iota
	contextKeyFunction
)

// ContextWithRunID attaches a run id for request-scoped logging.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, contextKeyRunID, runID)
}

// ContextWithFunction attaches the target function name.
func ContextWithFunction(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, contextKeyFunction, name)
}

// WithContext returns a logger carrying the run id and function name found in ctx.
func WithContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = current()
	}
	if runID, ok := ctx.Value(contextKeyRunID).(string); ok {
		base = base.With("run_id", runID)
	}
	if fn, ok := ctx.Value(contextKeyFunction).(string); ok {
		base = base.With("function", fn)
	}
	return base
}
