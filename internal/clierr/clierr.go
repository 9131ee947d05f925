// Package clierr defines the typed error taxonomy shared by every
// claude-tracker component: the CLI, the dashboard, and the core
// scheduler/review/store packages. A single TrackerError carries a
// Kind that both the CLI (color) and the dashboard (HTTP status)
// translate independently, so there is exactly one source of truth for
// "what went wrong." The CLI exits 1 for every kind.
package clierr

import (
	"errors"
	"fmt"
)

// Kind classifies a TrackerError for programmatic handling.
type Kind string

const (
	// Input indicates the caller supplied a bad argument, missing
	// field, or malformed value. Fix the input and retry.
	Input Kind = "input"

	// NotFoundKind indicates a referenced plan or resource does not
	// exist. Retrying with the same arguments will not help.
	NotFoundKind Kind = "not_found"

	// State indicates a guard failed: the requested transition is
	// not legal from the plan's current status.
	State Kind = "state"

	// Dependency indicates a dependency-graph violation: a cycle, a
	// cross-project edge, or a missing predecessor.
	Dependency Kind = "dependency"

	// VCS indicates a git command exited non-zero.
	VCS Kind = "vcs"

	// Agent indicates the agent subprocess exited non-zero.
	Agent Kind = "agent"

	// IO indicates a filesystem or log-file failure.
	IO Kind = "io"

	// Config indicates a malformed config file. Never surfaced to a
	// user directly — internal/config catches it and falls back to
	// defaults. Exists in the taxonomy so the fallback path can be
	// logged with a consistent kind.
	Config Kind = "config"
)

// TrackerError is a categorized error. Construct with the kind-specific
// functions below rather than this struct literal.
type TrackerError struct {
	Kind Kind
	Err  error
	Hint string
}

func (e *TrackerError) Error() string { return e.Err.Error() }
func (e *TrackerError) Unwrap() error { return e.Err }

// WithHint attaches a human-readable remediation hint, printed by the
// CLI on a second line below the error itself.
func (e *TrackerError) WithHint(hint string) *TrackerError {
	e.Hint = hint
	return e
}

func new_(kind Kind, format string, args ...any) *TrackerError {
	return &TrackerError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// InputError creates an Input-kind error.
func InputError(format string, args ...any) *TrackerError { return new_(Input, format, args...) }

// NotFound creates a NotFoundKind error.
func NotFound(format string, args ...any) *TrackerError { return new_(NotFoundKind, format, args...) }

// StateError creates a State-kind error.
func StateError(format string, args ...any) *TrackerError { return new_(State, format, args...) }

// DependencyError creates a Dependency-kind error.
func DependencyError(format string, args ...any) *TrackerError { return new_(Dependency, format, args...) }

// VCSError creates a VCS-kind error.
func VCSError(format string, args ...any) *TrackerError { return new_(VCS, format, args...) }

// AgentError creates an Agent-kind error.
func AgentError(format string, args ...any) *TrackerError { return new_(Agent, format, args...) }

// IOError creates an IO-kind error.
func IOError(format string, args ...any) *TrackerError { return new_(IO, format, args...) }

// ConfigError creates a Config-kind error.
func ConfigError(format string, args ...any) *TrackerError { return new_(Config, format, args...) }

// KindOf extracts the Kind of err by walking its error chain. Returns
// ("", false) if err does not wrap a *TrackerError.
func KindOf(err error) (Kind, bool) {
	var te *TrackerError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}

// HTTPStatus maps a Kind to the dashboard's HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Input, Dependency, State:
		return 400
	case NotFoundKind:
		return 404
	case VCS, Agent, IO, Config:
		return 500
	default:
		return 500
	}
}
