package review

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/MaxGfeller/claude-tracker/internal/agent"
	"github.com/MaxGfeller/claude-tracker/internal/clierr"
)

// Differ is the narrow slice of vcs.Repository the loop needs: the
// range diff between main and the plan's branch.
type Differ interface {
	DiffRange(ctx context.Context, rangeExpr string) (string, error)
}

// Round records one reviewer pass: the per-round verdict, the raw
// reviewer transcript, and its SHA-256 hash.
type Round struct {
	Number                int
	Verdict               Verdict
	ReviewerTranscript    string
	ReviewerTranscriptSHA string
}

// Transcript is the full round-by-round history of a single plan's
// review loop.
type Transcript struct {
	Rounds []Round
}

// Outcome is what Run returns: whether the loop converged on
// APPROVE, how many rounds actually ran, and the round history.
type Outcome struct {
	InitialWorkerSucceeded bool
	Approved               bool
	RoundsRun              int
	Transcript             Transcript
}

// Config parameterizes a single plan's run through the loop.
type Config struct {
	PlanID           int64
	PlanContent      string
	WorkingDirectory string
	SkipPermissions  bool
	MaxRounds        int

	// NewLogPath returns the log file path for one agent invocation
	// in the given role; called once per AgentRunner call.
	NewLogPath func(role agent.Role) string
}

// Loop drives a bounded worker-reviewer dialogue: one initial worker
// run, then alternating reviewer verdicts and worker revisions until
// an APPROVE verdict or the round budget is exhausted.
type Loop struct {
	Driver agent.Driver
	Repo   Differ
}

// New returns a Loop that drives driver and diffs via repo.
func New(driver agent.Driver, repo Differ) *Loop {
	return &Loop{Driver: driver, Repo: repo}
}

func (cfg Config) maxRounds() int {
	if cfg.MaxRounds <= 0 {
		return 5
	}
	return cfg.MaxRounds
}

// Run executes worker-run-0 followed by up to cfg.maxRounds() review
// rounds. A non-nil error means the loop could not reach a conclusive
// state (an agent invocation or a diff failed); the caller should
// leave the plan's status untouched in that case.
func (l *Loop) Run(ctx context.Context, cfg Config) (Outcome, error) {
	sessionID := uuid.NewString()

	workerResult, err := l.Driver.Run(ctx, agent.Config{
		Prompt:           WorkerPrompt(cfg.PlanContent),
		SessionID:        sessionID,
		SkipPermissions:  cfg.SkipPermissions,
		WorkingDirectory: cfg.WorkingDirectory,
		LogPath:          cfg.NewLogPath(agent.RoleWorker),
		PlanID:           cfg.PlanID,
		Role:             agent.RoleWorker,
	})
	if err != nil {
		return Outcome{}, clierr.AgentError("initial worker run: %w", err)
	}
	if workerResult.ExitCode != 0 {
		return Outcome{InitialWorkerSucceeded: false}, nil
	}

	outcome := Outcome{InitialWorkerSucceeded: true}

	for round := 1; round <= cfg.maxRounds(); round++ {
		diff, err := l.Repo.DiffRange(ctx, "main...HEAD")
		if err != nil {
			return outcome, err
		}
		if strings.TrimSpace(diff) == "" {
			return outcome, nil
		}

		reviewResult, err := l.Driver.Run(ctx, agent.Config{
			Prompt:           ReviewPrompt(cfg.PlanContent, diff),
			SessionID:        uuid.NewString(),
			SkipPermissions:  cfg.SkipPermissions,
			WorkingDirectory: cfg.WorkingDirectory,
			LogPath:          cfg.NewLogPath(agent.RoleReviewer),
			PlanID:           cfg.PlanID,
			Role:             agent.RoleReviewer,
		})
		if err != nil {
			return outcome, clierr.AgentError("reviewer run (round %d): %w", round, err)
		}
		if reviewResult.ExitCode != 0 {
			return outcome, nil
		}

		verdict, feedback := ParseVerdict(reviewResult.Transcript)
		outcome.RoundsRun = round
		outcome.Transcript.Rounds = append(outcome.Transcript.Rounds, Round{
			Number:                round,
			Verdict:               verdict,
			ReviewerTranscript:    reviewResult.Transcript,
			ReviewerTranscriptSHA: sha256Hex(reviewResult.Transcript),
		})

		if verdict == Approve {
			outcome.Approved = true
			return outcome, nil
		}

		revisionResult, err := l.Driver.Run(ctx, agent.Config{
			Prompt:           RevisionPrompt(feedback),
			SessionID:        sessionID,
			Resume:           true,
			SkipPermissions:  cfg.SkipPermissions,
			WorkingDirectory: cfg.WorkingDirectory,
			LogPath:          cfg.NewLogPath(agent.RoleWorker),
			PlanID:           cfg.PlanID,
			Role:             agent.RoleWorker,
		})
		if err != nil {
			return outcome, clierr.AgentError("worker revision (round %d): %w", round, err)
		}
		if revisionResult.ExitCode != 0 {
			return outcome, nil
		}
	}

	// Max rounds reached without an APPROVE verdict: the caller still
	// advances the plan to in-review rather than treating this as a
	// failure.
	return outcome, nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
