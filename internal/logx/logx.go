// Package logx hands out one structured logger per emulated component, all
// writing through a shared handler so a single level setting governs every
// channel.
package logx

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// EnvLevel is the environment variable read once at package
// initialization. It accepts
// "debug", "info", "warn" (default) or "error", case-insensitively.
const EnvLevel = "PCXT_LOG_LEVEL"

var (
	mu      sync.Mutex
	handler slog.Handler
	level   = new(slog.LevelVar)
)

func init() {
	level.Set(levelFromEnv())
	handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv(EnvLevel)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// SetLevel overrides the level derived from the environment, e.g. for a
// --debug CLI flag.
func SetLevel(l slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	level.Set(l)
}

// For returns the logger channel for a named component, e.g. "pic" or "fdc".
// Every call with the same name shares the same underlying handler and
// level, so adjusting the level at runtime affects all channels at once.
func For(component string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return slog.New(handler).With(slog.String("component", component))
}
