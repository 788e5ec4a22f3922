package engine

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvLogLevel selects the minimum level of NewLoggerFromEnv
const EnvLogLevel = "TABLESEARCH_LOG_LEVEL"

// NewLogger creates a text logger writing to w (stderr when nil)
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewLoggerFromEnv creates a stderr logger at the level named by
// TABLESEARCH_LOG_LEVEL (debug, info, warn, error; default info)
func NewLoggerFromEnv() (*slog.Logger, error) {
	level := slog.LevelInfo
	if raw := strings.TrimSpace(os.Getenv(EnvLogLevel)); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvLogLevel, raw)
		}
	}
	return NewLogger(os.Stderr, level), nil
}

// NoopLogger returns a logger that discards all output
func NoopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
