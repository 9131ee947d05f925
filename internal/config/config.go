// Package config loads and saves claude-tracker's single JSON
// configuration document. There is one file, no implicit discovery of
// other locations, and no environment-variable overrides of individual
// values — the file is the single auditable source of truth. A missing
// or unreadable file yields the built-in defaults (see Load and
// LoadOrDefault).
//
// The document is parsed with jsonc so a user hand-editing the file
// can leave // and /* */ comments; Save always writes back canonical,
// comment-free JSON.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/MaxGfeller/claude-tracker/internal/clierr"
)

// UsageLimits gates the scheduler's optional quota pre-flight.
type UsageLimits struct {
	Enabled                 bool    `json:"enabled"`
	MinAvailableInputTokens int     `json:"minAvailableInputTokens"`
	MinAvailableRequests    int     `json:"minAvailableRequests"`
	MaxCostPerSession       float64 `json:"maxCostPerSession"`
	MaxWaitMinutes          int     `json:"maxWaitMinutes"`
	OrganizationTier        int     `json:"organizationTier"`
}

// Worktree controls WorktreeManager's isolation behavior.
type Worktree struct {
	Enabled               bool `json:"enabled"`
	CopyGitignored        bool `json:"copyGitignored"`
	AutoCleanupOnComplete bool `json:"autoCleanupOnComplete"`
}

// Config is the full set of user preferences.
type Config struct {
	SkipPermissions bool        `json:"skipPermissions"`
	MaxReviewRounds int         `json:"maxReviewRounds"`
	UsageLimits     UsageLimits `json:"usageLimits"`
	Worktree        Worktree    `json:"worktree"`
}

// Default returns the documented out-of-the-box preferences.
func Default() *Config {
	return &Config{
		SkipPermissions: false,
		MaxReviewRounds: 5,
		UsageLimits: UsageLimits{
			Enabled:                 false,
			MinAvailableInputTokens: 10000,
			MinAvailableRequests:    5,
			MaxCostPerSession:       1.0,
			MaxWaitMinutes:          10,
			OrganizationTier:        0, // 0 means "auto"; resolved by the quota collaborator.
		},
		Worktree: Worktree{
			Enabled:               true,
			CopyGitignored:        true,
			AutoCleanupOnComplete: false,
		},
	}
}

// Load reads the config document at path. A missing file returns
// defaults with no error (first run). A malformed file is a
// clierr.ConfigError — callers that want the file contents to matter
// should check the error; LoadOrDefault is what most callers want.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, clierr.IOError("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return nil, clierr.ConfigError("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads the config at path, falling back to defaults
// and logging a warning on any ConfigError rather than surfacing it —
// a malformed config file should never block the CLI from starting.
func LoadOrDefault(path string, logger *slog.Logger) *Config {
	cfg, err := Load(path)
	if err != nil {
		if logger != nil {
			logger.Warn("falling back to default config", "path", path, "error", err)
		}
		return Default()
	}
	return cfg
}

// Save writes cfg to path as canonical, indented JSON, creating the
// parent directory if necessary.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return clierr.IOError("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return clierr.IOError("encoding config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return clierr.IOError("writing config %s: %w", path, err)
	}
	return nil
}

// Get returns the value named by key as a formatted string, for
// `tracker config <key>`. Supported keys use dotted paths matching the
// JSON field names (e.g. "usageLimits.enabled").
func Get(cfg *Config, key string) (string, error) {
	switch key {
	case "skipPermissions":
		return fmt.Sprint(cfg.SkipPermissions), nil
	case "maxReviewRounds":
		return fmt.Sprint(cfg.MaxReviewRounds), nil
	case "usageLimits.enabled":
		return fmt.Sprint(cfg.UsageLimits.Enabled), nil
	case "usageLimits.minAvailableInputTokens":
		return fmt.Sprint(cfg.UsageLimits.MinAvailableInputTokens), nil
	case "usageLimits.minAvailableRequests":
		return fmt.Sprint(cfg.UsageLimits.MinAvailableRequests), nil
	case "usageLimits.maxCostPerSession":
		return fmt.Sprint(cfg.UsageLimits.MaxCostPerSession), nil
	case "usageLimits.maxWaitMinutes":
		return fmt.Sprint(cfg.UsageLimits.MaxWaitMinutes), nil
	case "usageLimits.organizationTier":
		return fmt.Sprint(cfg.UsageLimits.OrganizationTier), nil
	case "worktree.enabled":
		return fmt.Sprint(cfg.Worktree.Enabled), nil
	case "worktree.copyGitignored":
		return fmt.Sprint(cfg.Worktree.CopyGitignored), nil
	case "worktree.autoCleanupOnComplete":
		return fmt.Sprint(cfg.Worktree.AutoCleanupOnComplete), nil
	default:
		return "", clierr.InputError("unknown config key %q", key)
	}
}

// Set parses value and assigns it to the field named by key, mutating
// cfg in place. Boolean fields accept "true"/"false"; numeric fields
// parse with fmt.Sscan.
func Set(cfg *Config, key, value string) error {
	switch key {
	case "skipPermissions":
		return setBool(&cfg.SkipPermissions, value)
	case "maxReviewRounds":
		return setInt(&cfg.MaxReviewRounds, value)
	case "usageLimits.enabled":
		return setBool(&cfg.UsageLimits.Enabled, value)
	case "usageLimits.minAvailableInputTokens":
		return setInt(&cfg.UsageLimits.MinAvailableInputTokens, value)
	case "usageLimits.minAvailableRequests":
		return setInt(&cfg.UsageLimits.MinAvailableRequests, value)
	case "usageLimits.maxCostPerSession":
		return setFloat(&cfg.UsageLimits.MaxCostPerSession, value)
	case "usageLimits.maxWaitMinutes":
		return setInt(&cfg.UsageLimits.MaxWaitMinutes, value)
	case "usageLimits.organizationTier":
		return setInt(&cfg.UsageLimits.OrganizationTier, value)
	case "worktree.enabled":
		return setBool(&cfg.Worktree.Enabled, value)
	case "worktree.copyGitignored":
		return setBool(&cfg.Worktree.CopyGitignored, value)
	case "worktree.autoCleanupOnComplete":
		return setBool(&cfg.Worktree.AutoCleanupOnComplete, value)
	default:
		return clierr.InputError("unknown config key %q", key)
	}
}

func setBool(dest *bool, value string) error {
	switch value {
	case "true":
		*dest = true
	case "false":
		*dest = false
	default:
		return clierr.InputError("expected true or false, got %q", value)
	}
	return nil
}

func setInt(dest *int, value string) error {
	var parsed int
	if _, err := fmt.Sscan(value, &parsed); err != nil {
		return clierr.InputError("expected an integer, got %q", value)
	}
	*dest = parsed
	return nil
}

func setFloat(dest *float64, value string) error {
	var parsed float64
	if _, err := fmt.Sscan(value, &parsed); err != nil {
		return clierr.InputError("expected a number, got %q", value)
	}
	*dest = parsed
	return nil
}
