package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/MaxGfeller/claude-tracker/internal/agent"
	"github.com/MaxGfeller/claude-tracker/internal/clierr"
	"github.com/MaxGfeller/claude-tracker/internal/orchestrate"
	"github.com/MaxGfeller/claude-tracker/internal/planfile"
	"github.com/MaxGfeller/claude-tracker/internal/review"
	"github.com/MaxGfeller/claude-tracker/internal/store"
)

func createCommand(e *env) *command {
	var planPath, description, dependsOn string
	flags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("create", pflag.ContinueOnError)
		fs.StringVarP(&planPath, "plan-path", "p", "", "path to an already-drafted plan file")
		fs.StringVarP(&description, "description", "d", "", "free-text description (ignored if --plan-path is set)")
		fs.StringVar(&dependsOn, "depends-on", "", "id of a plan in the same project this one depends on")
		return fs
	}

	return &command{
		name:    "create",
		summary: "Register a new plan against the current project",
		usage:   "tracker create [-p PATH] [-d DESC] [--depends-on ID] <title>",
		flags:   flags,
		run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return clierr.InputError("create requires exactly one <title> argument")
			}
			title := args[0]

			projectPath, err := os.Getwd()
			if err != nil {
				return clierr.IOError("resolving current directory: %w", err)
			}

			var plan *store.Plan
			if planPath != "" {
				plan, err = e.Store.AddPlan(ctx, planPath, projectPath, title)
			} else {
				plan, err = e.Store.CreateTask(ctx, projectPath, title, description)
			}
			if err != nil {
				return err
			}

			if dependsOn != "" {
				depID, err := planID(dependsOn)
				if err != nil {
					return err
				}
				if err := e.Store.SetDependency(ctx, plan.ID, &depID); err != nil {
					return err
				}
			}

			fmt.Printf("created plan %d: %s\n", plan.ID, plan.Title)
			return nil
		},
	}
}

func addCommand(e *env) *command {
	return &command{
		name:    "add",
		summary: "Register a plan backed by an already-drafted plan file",
		usage:   "tracker add <plan-path> <project-dir>",
		run: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return clierr.InputError("add requires <plan-path> and <project-dir>")
			}
			planPath, projectPath := args[0], args[1]

			title, err := planfile.ParseTitle(planPath)
			if err != nil {
				return clierr.IOError("reading plan file %s: %w", planPath, err)
			}
			if title == "" {
				title = planPath
			}

			plan, err := e.Store.AddPlan(ctx, planPath, projectPath, title)
			if err != nil {
				return err
			}
			fmt.Printf("added plan %d: %s\n", plan.ID, plan.Title)
			return nil
		},
	}
}

func listCommand(e *env) *command {
	var jsonOut bool
	flags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
		fs.BoolVar(&jsonOut, "json", false, "print machine-readable JSON instead of a table")
		return fs
	}

	return &command{
		name:    "list",
		summary: "List every registered plan",
		usage:   "tracker list [--json]",
		flags:   flags,
		run: func(ctx context.Context, args []string) error {
			plans, err := e.Store.List(ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(plans)
			}
			for _, plan := range plans {
				dep := ""
				if plan.DependsOnID != nil {
					dep = fmt.Sprintf(" depends-on=%d", *plan.DependsOnID)
				}
				fmt.Printf("%4d  %-11s  %-24s  %s (%s)%s\n",
					plan.ID, plan.Status, plan.DisplayName, plan.Title,
					humanize.Time(plan.UpdatedAt), dep)
			}
			return nil
		},
	}
}

func statusCommand(e *env) *command {
	return &command{
		name:    "status",
		summary: "Move a plan to a status directly, bypassing the normal guards",
		usage:   "tracker status <id> <open|in-progress|in-review|completed>",
		run: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return clierr.InputError("status requires <id> and <status>")
			}
			id, err := planID(args[0])
			if err != nil {
				return err
			}
			status := store.Status(args[1])
			switch status {
			case store.StatusOpen, store.InProgress, store.InReview, store.Completed:
			default:
				return clierr.InputError("unknown status %q", args[1])
			}
			return e.Store.UpdateStatus(ctx, id, status)
		},
	}
}

// planCommand drives a one-shot planning session to draft or redraft
// a plan's markdown body, mirroring the dashboard's synchronous
// POST /api/plans/:id/plan handler.
func planCommand(e *env) *command {
	return &command{
		name:    "plan",
		summary: "Generate a plan's markdown body by calling the agent in one-shot mode",
		usage:   "tracker plan <id>",
		run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return clierr.InputError("plan requires exactly one <id> argument")
			}
			plan, err := e.mustPlan(ctx, args[0])
			if err != nil {
				return err
			}

			description := plan.Description
			if description == "" {
				description = plan.Title
			}

			result, err := e.Driver.Run(ctx, agent.Config{
				Prompt:           review.DraftPrompt(description),
				SessionID:        newSessionID(),
				SkipPermissions:  e.Config.SkipPermissions,
				WorkingDirectory: plan.ProjectPath,
				LogPath:          agent.NewLogPath(e.LogsDir, plan.ID)(agent.RolePlanner),
				PlanID:           plan.ID,
				Role:             agent.RolePlanner,
			})
			if err != nil {
				return clierr.AgentError("drafting plan: %w", err)
			}
			if result.ExitCode != 0 {
				return clierr.AgentError("drafting session exited with code %d", result.ExitCode)
			}

			path := plan.PlanPath
			if path == "" {
				path = orchestrate.DefaultPlanPath(plan.ProjectPath, plan.ID)
			}
			if err := writeFile(path, result.Transcript); err != nil {
				return err
			}
			if err := e.Store.UpdatePlanPath(ctx, plan.ID, path); err != nil {
				return err
			}
			fmt.Printf("wrote plan %d to %s\n", plan.ID, path)
			return nil
		},
	}
}

func showDepsCommand(e *env) *command {
	return &command{
		name:    "show-deps",
		summary: "Print a plan's dependency chain, root to leaf",
		usage:   "tracker show-deps <id>",
		run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return clierr.InputError("show-deps requires exactly one <id> argument")
			}
			id, err := planID(args[0])
			if err != nil {
				return err
			}
			chain, err := e.Store.GetDependencyChain(ctx, id)
			if err != nil {
				return err
			}
			for _, plan := range chain {
				fmt.Printf("%4d  %-11s  %s\n", plan.ID, plan.Status, plan.Title)
			}
			return nil
		},
	}
}

func setDependencyCommand(e *env) *command {
	return &command{
		name:    "set-dependency",
		summary: "Set a plan's predecessor",
		usage:   "tracker set-dependency <id> <dep-id>",
		run: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return clierr.InputError("set-dependency requires <id> and <dep-id>")
			}
			id, err := planID(args[0])
			if err != nil {
				return err
			}
			depID, err := planID(args[1])
			if err != nil {
				return err
			}
			return e.Store.SetDependency(ctx, id, &depID)
		},
	}
}

func clearDependencyCommand(e *env) *command {
	return &command{
		name:    "clear-dependency",
		summary: "Remove a plan's dependency edge",
		usage:   "tracker clear-dependency <id>",
		run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return clierr.InputError("clear-dependency requires exactly one <id> argument")
			}
			id, err := planID(args[0])
			if err != nil {
				return err
			}
			return e.Store.SetDependency(ctx, id, nil)
		},
	}
}
