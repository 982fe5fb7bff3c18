// Package logger provides the configured structured logger for the SDK.
// It wraps the standard library "log/slog" package to ensure consistent
// formatting (JSON or text) and level management, and is the output channel
// the store and evaluator use for warnings and errors.
package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/rafaeljc/mimir/internal/config"
)

// Version is the SDK version stamped onto every log line and onto outbound
// request metadata.
const Version = "1.4.0"

// New creates a new *slog.Logger instance based on the provided options.
// Output is written to os.Stderr so host applications keep stdout for
// their own use.
func New(opts *config.Options) *slog.Logger {
	return NewWithWriter(opts, os.Stderr)
}

// NewWithWriter creates a new *slog.Logger writing to the given io.Writer.
// Useful for tests or custom output destinations.
func NewWithWriter(opts *config.Options, w io.Writer) *slog.Logger {
	if opts == nil {
		panic("logger: options cannot be nil")
	}

	handlerOpts := &slog.HandlerOptions{
		Level: parseLevel(opts.LogLevel),
	}

	var handler slog.Handler
	switch opts.LogFormat {
	case "text":
		handler = slog.NewTextHandler(w, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	default:
		// Default to JSON for safety
		handler = slog.NewJSONHandler(w, handlerOpts)
	}

	log := slog.New(handler)

	// Global attributes carried by every line from this SDK instance.
	log = log.With(
		slog.String("sdk", "mimir-go"),
		slog.String("sdk_version", Version),
	)
	if opts.Environment != "" {
		log = log.With(slog.String("env", opts.Environment))
	}

	return log
}

// parseLevel converts a string to slog.Level. Defaults to INFO.
func parseLevel(s string) slog.Level {
	var level slog.Level
	// UnmarshalText handles case insensitivity (INFO, info, Info)
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
