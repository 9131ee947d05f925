// Package orchestrate ties together the pieces StateMachine, VCS,
// WorktreeManager, and ReviewLoop each own in isolation into the
// single "run this plan" operation both the CLI's `work` command and
// the dashboard's /api/plans/{id}/work endpoint invoke. This is the
// one place that knows the order: claim, branch, worktree, review,
// advance.
package orchestrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/MaxGfeller/claude-tracker/internal/agent"
	"github.com/MaxGfeller/claude-tracker/internal/clierr"
	"github.com/MaxGfeller/claude-tracker/internal/config"
	"github.com/MaxGfeller/claude-tracker/internal/review"
	"github.com/MaxGfeller/claude-tracker/internal/statemachine"
	"github.com/MaxGfeller/claude-tracker/internal/store"
	"github.com/MaxGfeller/claude-tracker/internal/vcs"
	"github.com/MaxGfeller/claude-tracker/internal/worktree"
)

// baseBranch is the branch every plan branch forks from and merges
// back into on complete.
const baseBranch = "main"

var branchSlugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// BranchSlug lowercases title, collapses every run of non-alphanumeric
// characters to a single dash, trims leading/trailing dashes, and
// truncates to 50 characters.
func BranchSlug(title string) string {
	slug := branchSlugPattern.ReplaceAllString(strings.ToLower(title), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 50 {
		slug = strings.Trim(slug[:50], "-")
	}
	return slug
}

// BranchName returns the branch a plan runs on: "plan/<id>-<slug>".
func BranchName(id int64, title string) string {
	return fmt.Sprintf("plan/%d-%s", id, BranchSlug(title))
}

// Runner executes plans end to end. Every field is a narrow
// collaborator so tests can substitute fakes for the driver and the
// repository without a real git checkout or a real claude binary.
type Runner struct {
	Store     *store.Store
	Driver    agent.Driver
	Worktrees *worktree.Manager // nil disables worktree isolation
	Config    *config.Config
	LogsDir   string

	// OpenRepo opens the git repository rooted at path. Defaults to
	// vcs.Open; overridable by tests.
	OpenRepo func(path string) *vcs.Repository
}

func (r *Runner) openRepo(path string) *vcs.Repository {
	if r.OpenRepo != nil {
		return r.OpenRepo(path)
	}
	return vcs.Open(path)
}

// RunPlan claims plan, prepares its branch and (if enabled) isolated
// worktree, drives ReviewLoop to a conclusion, and advances the plan
// to in-review on a successful initial worker run. The plan's status
// is left untouched on any error along the way.
func (r *Runner) RunPlan(ctx context.Context, plan *store.Plan) error {
	if err := statemachine.ClaimForWork(ctx, r.Store, plan); err != nil {
		return err
	}
	return r.prepareAndReview(ctx, plan)
}

// ResumePlan re-enters ReviewLoop for a plan that is already
// in-progress (a prior `work` invocation started it but the process
// was interrupted, or the initial worker run failed and the user
// wants to retry). Unlike RunPlan it does not claim the plan — it is
// already claimed — so it requires a branch to already be recorded.
func (r *Runner) ResumePlan(ctx context.Context, plan *store.Plan) error {
	if plan.Status != store.InProgress {
		return clierr.StateError("plan %d is %s, not in-progress", plan.ID, plan.Status)
	}
	if plan.Branch == "" {
		return clierr.StateError("plan %d has never been started; use work instead", plan.ID)
	}
	return r.prepareAndReview(ctx, plan)
}

func (r *Runner) prepareAndReview(ctx context.Context, plan *store.Plan) error {
	branch := plan.Branch
	if branch == "" {
		branch = BranchName(plan.ID, plan.Title)
	}

	projectRepo := r.openRepo(plan.ProjectPath)
	exists, err := projectRepo.BranchExists(ctx, branch)
	if err != nil {
		return err
	}
	if !exists {
		if err := projectRepo.CreateBranch(ctx, branch, baseBranch); err != nil {
			return err
		}
	}
	if err := r.Store.UpdateBranch(ctx, plan.ID, branch); err != nil {
		return err
	}

	workingDirectory := plan.ProjectPath
	repo := projectRepo

	if r.Worktrees != nil && r.Config.Worktree.Enabled && worktree.Supported(ctx) {
		path := r.Worktrees.Path(plan.ProjectPath, plan.ID)
		if !r.Worktrees.Exists(plan.ProjectPath, plan.ID) {
			path, err = r.Worktrees.Create(ctx, plan.ProjectPath, branch, baseBranch, plan.ID, r.Config.Worktree.CopyGitignored)
			if err != nil {
				return err
			}
		}
		if err := r.Store.UpdateWorktreePath(ctx, plan.ID, path); err != nil {
			return err
		}
		workingDirectory = path
		repo = r.openRepo(path)
	}

	planContent, err := PlanBody(plan)
	if err != nil {
		return err
	}

	loop := review.New(r.Driver, repo)
	outcome, err := loop.Run(ctx, review.Config{
		PlanID:           plan.ID,
		PlanContent:      planContent,
		WorkingDirectory: workingDirectory,
		SkipPermissions:  r.Config.SkipPermissions,
		MaxRounds:        r.Config.MaxReviewRounds,
		NewLogPath:       agent.NewLogPath(r.LogsDir, plan.ID),
	})
	if err != nil {
		return err
	}

	return statemachine.FinishReview(ctx, r.Store, plan, outcome.InitialWorkerSucceeded)
}

// DefaultPlanPath is where a plan's markdown body lives when
// create_task left plan_path empty — both the CLI's `plan` command
// and the dashboard's drafting/chat endpoints need somewhere durable
// to write a freshly generated plan to.
func DefaultPlanPath(projectPath string, planID int64) string {
	return filepath.Join(projectPath, ".claude-tracker", "plans", fmt.Sprintf("%d.md", planID))
}

// PlanBody returns plan's opaque markdown body, as written to its
// plan file. A plan with no plan_path yet (a bare create_task), or
// whose plan file does not exist, uses its description as the body.
func PlanBody(plan *store.Plan) (string, error) {
	if plan.PlanPath == "" {
		return plan.Description, nil
	}
	data, err := os.ReadFile(plan.PlanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return plan.Description, nil
		}
		return "", clierr.IOError("reading plan file %s: %w", plan.PlanPath, err)
	}
	return string(data), nil
}
