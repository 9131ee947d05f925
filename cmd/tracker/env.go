package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/MaxGfeller/claude-tracker/internal/agent"
	"github.com/MaxGfeller/claude-tracker/internal/childtable"
	"github.com/MaxGfeller/claude-tracker/internal/clierr"
	"github.com/MaxGfeller/claude-tracker/internal/config"
	"github.com/MaxGfeller/claude-tracker/internal/logging"
	"github.com/MaxGfeller/claude-tracker/internal/orchestrate"
	"github.com/MaxGfeller/claude-tracker/internal/scheduler"
	"github.com/MaxGfeller/claude-tracker/internal/store"
	"github.com/MaxGfeller/claude-tracker/internal/worktree"
)

// env bundles every collaborator a command needs, built once in main
// and threaded through the command tree's closures. Nothing here is
// global state: tests construct their own env against temp
// directories and fake drivers.
type env struct {
	DataDir    string
	ConfigPath string
	LogsDir    string

	Store     *store.Store
	Config    *config.Config
	Worktrees *worktree.Manager
	Driver    agent.Driver
	Children  *childtable.Table
	Logger    *slog.Logger
}

func newEnv(verbose bool) (*env, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, clierr.IOError("creating data directory %s: %w", dir, err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := logging.New(os.Stderr, level)

	cfg := config.LoadOrDefault(configPath(dir), logger)

	st, err := store.Open(dbPath(dir), logging.Component(logger, "store"))
	if err != nil {
		return nil, err
	}

	base, err := worktree.DefaultBase()
	if err != nil {
		return nil, err
	}

	children := childtable.New()

	return &env{
		DataDir:    dir,
		ConfigPath: configPath(dir),
		LogsDir:    logsDir(dir),
		Store:      st,
		Config:     cfg,
		Worktrees:  worktree.New(base),
		Driver:     agent.NewClaudeDriver(children),
		Children:   children,
		Logger:     logger,
	}, nil
}

func (e *env) close() error {
	return e.Store.Close()
}

// runner builds the orchestrate.Runner for a single RunPlan call,
// honoring the user's worktree.enabled preference.
func (e *env) runner() *orchestrate.Runner {
	worktrees := e.Worktrees
	if !e.Config.Worktree.Enabled {
		worktrees = nil
	}
	return &orchestrate.Runner{
		Store:     e.Store,
		Driver:    e.Driver,
		Worktrees: worktrees,
		Config:    e.Config,
		LogsDir:   e.LogsDir,
	}
}

// scheduler builds a scheduler.Scheduler wired to this env's Store
// and runner, with the config's usage-limit quota checker plugged in
// when enabled.
func (e *env) scheduler() *scheduler.Scheduler {
	runner := e.runner()
	sched := scheduler.New(e.Store, func(ctx context.Context, plan *store.Plan) error {
		return runner.RunPlan(ctx, plan)
	})
	if e.Config.UsageLimits.Enabled {
		sched.Quota = noopQuota{}
	}
	return sched
}

// noopQuota is the QuotaChecker plugged in when usageLimits.enabled is
// set (see DESIGN.md's "/api/usage scope" decision). It always allows,
// like the scheduler's default checker, so the setting does not change
// which plans run.
type noopQuota struct{}

func (noopQuota) Allow(ctx context.Context) (bool, error) { return true, nil }

// planID parses a CLI positional argument as a plan id.
func planID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, clierr.InputError("invalid plan id %q", arg)
	}
	return id, nil
}

func (e *env) mustPlan(ctx context.Context, arg string) (*store.Plan, error) {
	id, err := planID(arg)
	if err != nil {
		return nil, err
	}
	return e.Store.Get(ctx, id)
}
