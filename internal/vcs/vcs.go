// Package vcs is a thin typed wrapper over the git CLI: checkout,
// branch management, status, diff, merge, fetch, log, and worktree
// listing. Every operation is scoped to a working directory via
// "git -C <dir>", never assuming a default directory. There are no
// retries; a failing command is surfaced to the caller with stderr
// attached, for the caller to apply whatever policy it wants.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/MaxGfeller/claude-tracker/internal/clierr"
)

// Repository targets git operations at a single directory.
type Repository struct {
	dir string
}

// Open returns a Repository rooted at dir.
func Open(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository's working directory.
func (r *Repository) Dir() string { return r.dir }

// run executes git with args against r.dir, returning trimmed stdout
// and the raw *exec.ExitError (if any) alongside the wrapped
// clierr.VCSError, so callers that care about a specific exit code
// (BranchExists) don't need to parse error text.
func (r *Repository) run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", fullArgs...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", clierr.VCSError("git %s (in %s): %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Checkout checks out an existing branch.
func (r *Repository) Checkout(ctx context.Context, branch string) error {
	_, err := r.run(ctx, "checkout", branch)
	return err
}

// CreateBranch creates branch from base (e.g. "main") and checks it
// out.
func (r *Repository) CreateBranch(ctx context.Context, branch, base string) error {
	_, err := r.run(ctx, "checkout", "-b", branch, base)
	return err
}

// BranchExists reports whether branch exists locally. `git show-ref
// --verify --quiet` exits 1 with no output when the ref is absent;
// that specific case is "false, nil", not an error.
func (r *Repository) BranchExists(ctx context.Context, branch string) (bool, error) {
	_, err := r.run(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, err
}

// CurrentBranch returns the checked-out branch name.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// StatusPorcelain returns `git status --porcelain` output.
func (r *Repository) StatusPorcelain(ctx context.Context) (string, error) {
	return r.run(ctx, "status", "--porcelain")
}

// DiffRange returns the diff across rangeExpr (e.g. "main...HEAD").
func (r *Repository) DiffRange(ctx context.Context, rangeExpr string) (string, error) {
	return r.run(ctx, "diff", rangeExpr)
}

// Merge merges branch into the current branch with --no-ff, so the
// resulting history records the plan boundary explicitly rather than
// fast-forwarding it away.
func (r *Repository) Merge(ctx context.Context, branch string) error {
	_, err := r.run(ctx, "merge", "--no-ff", "--no-edit", branch)
	return err
}

// Fetch fetches from remote.
func (r *Repository) Fetch(ctx context.Context, remote string) error {
	_, err := r.run(ctx, "fetch", remote)
	return err
}

// LogRange returns a one-line-per-commit log over rangeExpr.
func (r *Repository) LogRange(ctx context.Context, rangeExpr string) (string, error) {
	return r.run(ctx, "log", "--oneline", rangeExpr)
}

// BranchDelete force-deletes a local branch.
func (r *Repository) BranchDelete(ctx context.Context, branch string) error {
	_, err := r.run(ctx, "branch", "-D", branch)
	return err
}

// AddWorktree creates a worktree at path checked out at branch.
func (r *Repository) AddWorktree(ctx context.Context, path, branch string) error {
	_, err := r.run(ctx, "worktree", "add", path, branch)
	return err
}

// RemoveWorktree force-removes the worktree at path and prunes stale
// worktree metadata.
func (r *Repository) RemoveWorktree(ctx context.Context, path string) error {
	if _, err := r.run(ctx, "worktree", "remove", "--force", path); err != nil {
		return err
	}
	_, err := r.run(ctx, "worktree", "prune")
	return err
}

// Worktree is one entry of `git worktree list --porcelain`.
type Worktree struct {
	Path   string
	Branch string
	Head   string
}

// WorktreeList parses `git worktree list --porcelain` into typed
// entries.
func (r *Repository) WorktreeList(ctx context.Context) ([]Worktree, error) {
	out, err := r.run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreePorcelain(out), nil
}

func parseWorktreePorcelain(out string) []Worktree {
	var worktrees []Worktree
	var current Worktree
	flush := func() {
		if current.Path != "" {
			worktrees = append(worktrees, current)
		}
		current = Worktree{}
	}
	for _, line := range strings.Split(out, "\n") {
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	flush()
	return worktrees
}
