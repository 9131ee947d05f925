package main

import (
	"os"
	"path/filepath"

	"github.com/MaxGfeller/claude-tracker/internal/clierr"
)

// dataDir resolves the tracker's data directory: $XDG_DATA_HOME/
// claude-tracker if set, else "<home>/.local/share/claude-tracker" per
// the usual Linux/BSD XDG convention.
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "claude-tracker"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", clierr.IOError("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "claude-tracker"), nil
}

func dbPath(dir string) string     { return filepath.Join(dir, "plans.db") }
func configPath(dir string) string { return filepath.Join(dir, "config.json") }
func logsDir(dir string) string    { return filepath.Join(dir, "logs") }
