package main

import (
	"path/filepath"
	"testing"
)

func TestDataDirHonorsXDGDataHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/srv/xdg")

	dir, err := dataDir()
	if err != nil {
		t.Fatalf("dataDir: %v", err)
	}
	if want := filepath.Join("/srv/xdg", "claude-tracker"); dir != want {
		t.Errorf("dataDir = %q, want %q", dir, want)
	}
}

func TestDataDirFallsBackToHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "/home/example")

	dir, err := dataDir()
	if err != nil {
		t.Fatalf("dataDir: %v", err)
	}
	if want := filepath.Join("/home/example", ".local", "share", "claude-tracker"); dir != want {
		t.Errorf("dataDir = %q, want %q", dir, want)
	}
}

func TestDerivedPaths(t *testing.T) {
	dir := "/data/claude-tracker"
	if got, want := dbPath(dir), filepath.Join(dir, "plans.db"); got != want {
		t.Errorf("dbPath = %q, want %q", got, want)
	}
	if got, want := configPath(dir), filepath.Join(dir, "config.json"); got != want {
		t.Errorf("configPath = %q, want %q", got, want)
	}
	if got, want := logsDir(dir), filepath.Join(dir, "logs"); got != want {
		t.Errorf("logsDir = %q, want %q", got, want)
	}
}
