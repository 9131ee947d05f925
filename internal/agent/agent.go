// Package agent drives the external coding-agent binary (claude):
// spawns it with the invocation contract ReviewLoop needs, streams its
// structured stdout into a per-plan log file, and reduces the stream
// down to the plain-text transcript a reviewer's verdict is parsed
// from.
package agent

import (
	"context"
	"io"
)

// Role distinguishes a worker invocation (implements the plan) from a
// reviewer invocation (judges a diff). It has no effect on the
// invocation contract itself — it is carried through so logs and the
// childtable can say which role a given process played.
type Role string

const (
	RoleWorker   Role = "worker"
	RoleReviewer Role = "reviewer"

	// RolePlanner is used for one-shot plan drafting and the
	// dashboard's iterative plan-chat — sessions that never enter
	// ReviewLoop at all.
	RolePlanner Role = "planner"
)

// Config is the invocation contract shared by every agent run,
// whether a fresh worker session, a reviewer pass, or a revision
// resume.
type Config struct {
	// Prompt is written to a temp file and piped into the agent's
	// stdin, then the temp file is unlinked.
	Prompt string

	// SessionID identifies the conversation. Combined with Resume it
	// selects --session-id (fresh) or --resume (continue).
	SessionID string
	Resume    bool

	// SkipPermissions passes --dangerously-skip-permissions.
	SkipPermissions bool

	// WorkingDirectory is the worktree if one exists, else the
	// project root.
	WorkingDirectory string

	// LogPath is the JSONL file every raw stdout line is appended
	// to. Created if absent.
	LogPath string

	// ExtraEnv carries additional "KEY=VALUE" entries appended to
	// the child's environment (OTel overrides, etc).
	ExtraEnv []string

	// PlanID and Role are metadata for ChildTable registration; they
	// do not affect the subprocess invocation.
	PlanID int64
	Role   Role
}

// Result is what a run produces: the process exit code and the
// concatenated plain-text transcript extracted from the stream.
type Result struct {
	ExitCode   int
	Transcript string
}

// Driver spawns the agent process and reduces its output to a
// Result. Run blocks until the process exits or ctx is cancelled; on
// cancellation the process (and its whole process group) is sent
// SIGTERM and Run waits for it to exit before returning ctx.Err().
type Driver interface {
	Run(ctx context.Context, cfg Config) (Result, error)
}

// logLine appends a single raw line (already newline-terminated) to
// w, ignoring write errors — a log write failure must never abort an
// in-flight agent run.
func logLine(w io.Writer, line []byte) {
	if w == nil {
		return
	}
	_, _ = w.Write(line)
	if len(line) == 0 || line[len(line)-1] != '\n' {
		_, _ = w.Write([]byte{'\n'})
	}
}
