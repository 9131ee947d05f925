package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/MaxGfeller/claude-tracker/internal/clierr"
	"github.com/MaxGfeller/claude-tracker/internal/statemachine"
	"github.com/MaxGfeller/claude-tracker/internal/vcs"
	"github.com/MaxGfeller/claude-tracker/internal/worktree"
)

// workCommand drives each requested plan (or, with no arguments,
// every unblocked open plan) through orchestrate.Runner via the
// scheduler's project-partitioned concurrency model.
func workCommand(e *env) *command {
	return &command{
		name:    "work",
		summary: "Work one or more plans to an in-review conclusion",
		usage:   "tracker work [id...]",
		run: func(ctx context.Context, args []string) error {
			stop := installInterruptHandler(e)
			defer stop()

			ids, err := resolvePlanIDs(ctx, e, args)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("no unblocked open plans")
				return nil
			}

			results, err := e.scheduler().Run(ctx, ids)
			if err != nil {
				return err
			}
			return reportResults(ctx, e, ids, results)
		},
	}
}

func resolvePlanIDs(ctx context.Context, e *env, args []string) ([]int64, error) {
	if len(args) == 0 {
		plans, err := e.Store.UnblockedOpenTasks(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, len(plans))
		for i, plan := range plans {
			ids[i] = plan.ID
		}
		return ids, nil
	}

	ids := make([]int64, len(args))
	for i, arg := range args {
		id, err := planID(arg)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// reportResults prints one line per plan and returns a non-nil error
// (so main exits 1) if any plan in ids failed. A plan absent from
// results either succeeded or was skipped because its predecessor
// hasn't reached in-review yet; the two are told apart by re-checking
// statemachine.CanStart rather than assuming absence means success.
func reportResults(ctx context.Context, e *env, ids []int64, results map[int64]error) error {
	failed := 0
	for _, id := range ids {
		if err, ok := results[id]; ok {
			fmt.Printf("plan %d: error: %v\n", id, err)
			failed++
			continue
		}

		plan, err := e.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		guard, err := statemachine.CanStart(ctx, e.Store, plan)
		if err != nil {
			return err
		}
		if !guard.Allowed && guard.BlockedBy != nil {
			fmt.Printf("plan %d: blocked by plan %d (%s)\n", id, guard.BlockedBy.ID, guard.Reason)
			continue
		}
		fmt.Printf("plan %d: done\n", id)
	}
	if failed > 0 {
		return clierr.AgentError("%d of %d plan(s) failed", failed, len(ids))
	}
	return nil
}

func checkoutCommand(e *env) *command {
	return &command{
		name:    "checkout",
		summary: "Print the working directory for a plan's branch, checking it out if needed",
		usage:   "tracker checkout <id>",
		run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return clierr.InputError("checkout requires exactly one <id> argument")
			}
			plan, err := e.mustPlan(ctx, args[0])
			if err != nil {
				return err
			}
			if plan.Branch == "" {
				return clierr.StateError("plan %d has no branch yet; run work first", plan.ID)
			}

			if plan.WorktreePath != "" {
				fmt.Println(plan.WorktreePath)
				return nil
			}

			repo := vcs.Open(plan.ProjectPath)
			if err := repo.Checkout(ctx, plan.Branch); err != nil {
				return err
			}
			fmt.Println(plan.ProjectPath)
			return nil
		},
	}
}

func resumeCommand(e *env) *command {
	return &command{
		name:    "resume",
		summary: "Re-enter the review loop for a plan that is already in-progress",
		usage:   "tracker resume <id>",
		run: func(ctx context.Context, args []string) error {
			stop := installInterruptHandler(e)
			defer stop()

			if len(args) != 1 {
				return clierr.InputError("resume requires exactly one <id> argument")
			}
			plan, err := e.mustPlan(ctx, args[0])
			if err != nil {
				return err
			}
			if err := e.runner().ResumePlan(ctx, plan); err != nil {
				return err
			}
			fmt.Printf("plan %d: done\n", plan.ID)
			return nil
		},
	}
}

func completeCommand(e *env) *command {
	var dbOnly bool
	flags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("complete", pflag.ContinueOnError)
		fs.BoolVar(&dbOnly, "db-only", false, "mark completed without merging the branch")
		return fs
	}

	return &command{
		name:    "complete",
		summary: "Merge a plan's branch to main and mark it completed",
		usage:   "tracker complete <id> [--db-only]",
		flags:   flags,
		run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return clierr.InputError("complete requires exactly one <id> argument")
			}
			plan, err := e.mustPlan(ctx, args[0])
			if err != nil {
				return err
			}

			if !dbOnly {
				if plan.Branch == "" {
					return clierr.StateError("plan %d has no branch to merge", plan.ID)
				}
				repo := vcs.Open(plan.ProjectPath)
				if err := repo.Checkout(ctx, "main"); err != nil {
					return err
				}
				if err := repo.Merge(ctx, plan.Branch); err != nil {
					return err
				}
			}

			if err := statemachine.Complete(ctx, e.Store, plan); err != nil {
				return err
			}

			if e.Config.Worktree.AutoCleanupOnComplete && plan.WorktreePath != "" {
				if err := e.Worktrees.Remove(ctx, plan.ProjectPath, plan.ID); err != nil {
					return err
				}
			}
			fmt.Printf("plan %d: completed\n", plan.ID)
			return nil
		},
	}
}

func resetCommand(e *env) *command {
	return &command{
		name:    "reset",
		summary: "Return a plan to open status",
		usage:   "tracker reset <id>",
		run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return clierr.InputError("reset requires exactly one <id> argument")
			}
			plan, err := e.mustPlan(ctx, args[0])
			if err != nil {
				return err
			}
			return statemachine.Reset(ctx, e.Store, plan)
		},
	}
}

func cancelCommand(e *env) *command {
	return &command{
		name:    "cancel",
		summary: "Delete a plan's record and branch",
		usage:   "tracker cancel <id>",
		run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return clierr.InputError("cancel requires exactly one <id> argument")
			}
			plan, err := e.mustPlan(ctx, args[0])
			if err != nil {
				return err
			}
			if err := statemachine.Cancel(ctx, e.Store, plan); err != nil {
				return err
			}
			if plan.Branch != "" {
				repo := vcs.Open(plan.ProjectPath)
				_ = repo.BranchDelete(ctx, plan.Branch)
			}
			return nil
		},
	}
}

func cleanupCommand(e *env) *command {
	return &command{
		name:    "cleanup",
		summary: "Remove orphaned worktrees that no plan claims any more",
		usage:   "tracker cleanup",
		run: func(ctx context.Context, args []string) error {
			plans, err := e.Store.List(ctx)
			if err != nil {
				return err
			}
			live := make(map[string]bool, len(plans))
			for _, plan := range plans {
				live[worktree.Slug(plan.ProjectPath)+"/"+fmt.Sprint(plan.ID)] = true
			}

			orphans, err := e.Worktrees.ScanOrphans(func(slug string, id int64) bool {
				return live[slug+"/"+fmt.Sprint(id)]
			})
			if err != nil {
				return err
			}
			if len(orphans) == 0 {
				fmt.Println("no orphaned worktrees")
				return nil
			}
			for _, orphan := range orphans {
				if err := vcs.Open(orphan.Path).RemoveWorktree(ctx, orphan.Path); err != nil {
					fmt.Fprintf(os.Stderr, "removing %s: %v\n", orphan.Path, err)
					continue
				}
				fmt.Printf("removed %s\n", orphan.Path)
			}
			return nil
		},
	}
}
