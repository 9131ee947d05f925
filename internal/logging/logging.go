// Package logging constructs the structured loggers shared by the CLI
// and the dashboard. Every claude-tracker binary logs through
// log/slog; this package is the single place that decides the handler
// (text for an interactive terminal, JSON for redirected output) so
// every component is consistent.
package logging

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// New returns a logger writing to w at the given level. When w is an
// *os.File connected to a terminal, output uses slog's human-readable
// text handler; otherwise (piped to a file, captured by systemd, etc.)
// it uses the JSON handler so downstream tooling can parse it.
func New(w io.Writer, level slog.Level) *slog.Logger {
	handlerOptions := &slog.HandlerOptions{Level: level}

	if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return slog.New(slog.NewTextHandler(w, handlerOptions))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOptions))
}

// Component returns logger scoped with a "component" attribute,
// tagging every log line with the subsystem that emitted it.
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("component", name)
}
