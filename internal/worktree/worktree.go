// Package worktree provisions per-plan isolated git working trees so
// that parallel plans across projects never share a directory, and
// copies the gitignored local-environment files (.env, dotfiles, and
// anything else the project's own .gitignore catches) a fresh
// worktree would otherwise be missing.
package worktree

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/MaxGfeller/claude-tracker/internal/clierr"
	"github.com/MaxGfeller/claude-tracker/internal/vcs"
)

// MaxCopyBytes is the size ceiling for a single gitignored file to be
// copied into a new worktree.
const MaxCopyBytes = 10 * 1024 * 1024

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Slug derives the project-slug component of a worktree path: the
// last two path segments of projectPath, joined with "-", with every
// run of non-alphanumeric characters collapsed to a single "-".
func Slug(projectPath string) string {
	clean := filepath.Clean(projectPath)
	parts := strings.Split(clean, string(filepath.Separator))
	var tail []string
	for i := len(parts) - 1; i >= 0 && len(tail) < 2; i-- {
		if parts[i] != "" {
			tail = append([]string{parts[i]}, tail...)
		}
	}
	joined := strings.Join(tail, "-")
	return strings.Trim(nonAlphanumeric.ReplaceAllString(joined, "-"), "-")
}

// Manager provisions and removes worktrees under a single base
// directory, defaulting to "<home>/.task-tracker/worktrees".
type Manager struct {
	base string
}

// New returns a Manager rooted at base.
func New(base string) *Manager {
	return &Manager{base: base}
}

// DefaultBase returns "<home>/.task-tracker/worktrees".
func DefaultBase() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", clierr.IOError("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".task-tracker", "worktrees"), nil
}

// Path derives the worktree directory for a plan.
func (m *Manager) Path(projectPath string, planID int64) string {
	return filepath.Join(m.base, Slug(projectPath), strconv.FormatInt(planID, 10))
}

// Supported reports whether the installed git supports `git worktree`
// (stable since git 2.5). If the version can't be determined, it
// degrades gracefully by reporting false so callers fall back to a
// branch checkout in the main repository.
func Supported(ctx context.Context) bool {
	out, err := exec.CommandContext(ctx, "git", "--version").Output()
	if err != nil {
		return false
	}
	major, minor, ok := parseGitVersion(string(out))
	if !ok {
		return false
	}
	return major > 2 || (major == 2 && minor >= 5)
}

func parseGitVersion(output string) (major, minor int, ok bool) {
	fields := strings.Fields(output)
	for _, field := range fields {
		parts := strings.SplitN(field, ".", 3)
		if len(parts) < 2 {
			continue
		}
		var err error
		major, err = strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		minor, err = strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		return major, minor, true
	}
	return 0, 0, false
}

// Exists reports whether the plan's worktree directory exists and
// contains git metadata.
func (m *Manager) Exists(projectPath string, planID int64) bool {
	path := m.Path(projectPath, planID)
	info, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil && !info.IsDir() // worktree .git is a file pointing at the parent repo's gitdir
}

// Create ensures branch exists in the project repo (creating it from
// baseBranch if absent), creates the worktree at the derived path,
// and copies eligible gitignored files into it. Re-invoking on an
// existing worktree is a no-op.
func (m *Manager) Create(ctx context.Context, projectPath, branch, baseBranch string, planID int64, copyGitignored bool) (string, error) {
	if m.Exists(projectPath, planID) {
		return m.Path(projectPath, planID), nil
	}

	repo := vcs.Open(projectPath)
	exists, err := repo.BranchExists(ctx, branch)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := repo.CreateBranch(ctx, branch, baseBranch); err != nil {
			return "", err
		}
	}
	// Whether branch was just created here or already existed (a
	// caller may have created it on the main checkout before calling
	// Create), the main checkout must not be sitting on branch itself:
	// `git worktree add` refuses a branch that is already checked out
	// elsewhere. Switch back to baseBranch whenever the main checkout is
	// on branch so the worktree can claim it.
	current, err := repo.CurrentBranch(ctx)
	if err != nil {
		return "", err
	}
	if current == branch {
		if err := repo.Checkout(ctx, baseBranch); err != nil {
			return "", err
		}
	}

	path := m.Path(projectPath, planID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", clierr.IOError("creating worktree parent directory: %w", err)
	}
	if err := repo.AddWorktree(ctx, path, branch); err != nil {
		return "", err
	}

	if copyGitignored {
		if err := copyGitignoredFiles(projectPath, path); err != nil {
			return "", err
		}
	}

	return path, nil
}

// Remove force-removes the plan's worktree and prunes stale metadata.
func (m *Manager) Remove(ctx context.Context, projectPath string, planID int64) error {
	repo := vcs.Open(projectPath)
	return repo.RemoveWorktree(ctx, m.Path(projectPath, planID))
}

// DiskUsage returns the best-effort recursive byte size of a plan's
// worktree. Errors walking individual entries are ignored; only a
// failure to stat the root is returned.
func (m *Manager) DiskUsage(projectPath string, planID int64) (int64, error) {
	return DiskUsageAt(m.Path(projectPath, planID))
}

// DiskUsageAt returns the best-effort recursive byte size of the
// worktree directory rooted at path — used directly by callers (an
// orphan listing) that already have the root and no live plan record
// to re-derive it from.
func DiskUsageAt(root string) (int64, error) {
	if _, err := os.Stat(root); err != nil {
		return 0, clierr.IOError("worktree %s: %w", root, err)
	}
	var total int64
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, nil
}

// Orphan is a worktree directory with no matching live plan.
type Orphan struct {
	ProjectSlug string
	PlanID      int64
	Path        string
}

// ScanOrphans enumerates worktrees under the base directory and
// reports every (project-slug, plan-id) pair for which known returns
// false, i.e. no plan in the Store claims that directory.
func (m *Manager) ScanOrphans(known func(projectSlug string, planID int64) bool) ([]Orphan, error) {
	entries, err := os.ReadDir(m.base)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, clierr.IOError("scanning worktree base %s: %w", m.base, err)
	}

	var orphans []Orphan
	for _, slugEntry := range entries {
		if !slugEntry.IsDir() {
			continue
		}
		slug := slugEntry.Name()
		slugDir := filepath.Join(m.base, slug)
		planEntries, err := os.ReadDir(slugDir)
		if err != nil {
			continue
		}
		for _, planEntry := range planEntries {
			if !planEntry.IsDir() {
				continue
			}
			id, err := strconv.ParseInt(planEntry.Name(), 10, 64)
			if err != nil {
				continue
			}
			if !known(slug, id) {
				orphans = append(orphans, Orphan{
					ProjectSlug: slug,
					PlanID:      id,
					Path:        filepath.Join(slugDir, planEntry.Name()),
				})
			}
		}
	}
	return orphans, nil
}

// copyGitignoredFiles walks src (skipping .git), copying every file
// that the project's own .gitignore marks as ignored, is at most
// MaxCopyBytes, and does not already exist at the destination.
func copyGitignoredFiles(src, dst string) error {
	matcher, err := loadMatcher(src)
	if err != nil {
		return err
	}

	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(src, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		relSlash := filepath.ToSlash(rel)
		if !matcher.IsIgnored(relSlash, false) {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > MaxCopyBytes {
			return nil
		}

		destPath := filepath.Join(dst, rel)
		if _, err := os.Stat(destPath); err == nil {
			return nil // already present in the new worktree
		}

		return copyFile(path, destPath, info.Mode())
	})
}

func loadMatcher(projectPath string) (*Matcher, error) {
	file, err := os.Open(filepath.Join(projectPath, ".gitignore"))
	if os.IsNotExist(err) {
		return &Matcher{}, nil
	}
	if err != nil {
		return nil, clierr.IOError("reading .gitignore: %w", err)
	}
	defer file.Close()
	return ParseGitignore(bufio.NewReader(file))
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return clierr.IOError("creating directory for %s: %w", dst, err)
	}
	in, err := os.Open(src)
	if err != nil {
		return clierr.IOError("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return clierr.IOError("creating %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return clierr.IOError("copying %s to %s: %w", src, dst, err)
	}
	return nil
}
