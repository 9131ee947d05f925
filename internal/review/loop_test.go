package review

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/MaxGfeller/claude-tracker/internal/agent"
)

// fakeDiffer returns a scripted sequence of diffs, one per call, with
// the last entry repeating for any call beyond the scripted list.
type fakeDiffer struct {
	diffs []string
	calls int
}

func (f *fakeDiffer) DiffRange(ctx context.Context, rangeExpr string) (string, error) {
	index := f.calls
	if index >= len(f.diffs) {
		index = len(f.diffs) - 1
	}
	f.calls++
	return f.diffs[index], nil
}

func newLogPath(t *testing.T) func(agent.Role) string {
	dir := t.TempDir()
	n := 0
	return func(role agent.Role) string {
		n++
		return filepath.Join(dir, fmt.Sprintf("%d-%s.jsonl", n, role))
	}
}

func TestLoopApprovesOnFirstRound(t *testing.T) {
	t.Parallel()

	driver := &agent.Fake{
		Responses: []agent.FakeResponse{
			{Lines: []string{`{"type":"assistant","message":{"content":[{"type":"text","text":"implemented"}]}}`}, ExitCode: 0},
			{Lines: []string{`{"type":"assistant","message":{"content":[{"type":"text","text":"<verdict>APPROVE</verdict>"}]}}`}, ExitCode: 0},
		},
	}
	differ := &fakeDiffer{diffs: []string{"diff --git a/x b/x\n+hi\n"}}
	loop := New(driver, differ)

	outcome, err := loop.Run(context.Background(), Config{
		PlanContent:      "do the thing",
		WorkingDirectory: "/tmp",
		NewLogPath:       newLogPath(t),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Approved {
		t.Errorf("Approved = false, want true")
	}
	if outcome.RoundsRun != 1 {
		t.Errorf("RoundsRun = %d, want 1", outcome.RoundsRun)
	}
	if len(outcome.Transcript.Rounds) != 1 || outcome.Transcript.Rounds[0].Verdict != Approve {
		t.Errorf("Transcript.Rounds = %+v, want a single APPROVE round", outcome.Transcript.Rounds)
	}
}

func TestLoopReturnsWithoutReviewWhenDiffEmpty(t *testing.T) {
	t.Parallel()

	driver := &agent.Fake{
		Responses: []agent.FakeResponse{
			{Lines: []string{`{"type":"assistant","message":{"content":[{"type":"text","text":"nothing to do"}]}}`}, ExitCode: 0},
		},
	}
	differ := &fakeDiffer{diffs: []string{""}}
	loop := New(driver, differ)

	outcome, err := loop.Run(context.Background(), Config{
		PlanContent:      "do the thing",
		WorkingDirectory: "/tmp",
		NewLogPath:       newLogPath(t),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Approved {
		t.Errorf("Approved = true, want false (no diff to review)")
	}
	if outcome.RoundsRun != 0 {
		t.Errorf("RoundsRun = %d, want 0", outcome.RoundsRun)
	}
	if !outcome.InitialWorkerSucceeded {
		t.Errorf("InitialWorkerSucceeded = false, want true")
	}
}

func TestLoopRevisesThenApproves(t *testing.T) {
	t.Parallel()

	driver := &agent.Fake{
		Responses: []agent.FakeResponse{
			{Lines: []string{`{"type":"assistant","message":{"content":[{"type":"text","text":"v1"}]}}`}, ExitCode: 0},
			{Lines: []string{`{"type":"assistant","message":{"content":[{"type":"text","text":"<verdict>REQUEST_CHANGES</verdict> needs tests"}]}}`}, ExitCode: 0},
			{Lines: []string{`{"type":"assistant","message":{"content":[{"type":"text","text":"v2"}]}}`}, ExitCode: 0},
			{Lines: []string{`{"type":"assistant","message":{"content":[{"type":"text","text":"<verdict>APPROVE</verdict>"}]}}`}, ExitCode: 0},
		},
	}
	differ := &fakeDiffer{diffs: []string{"diff v1\n", "diff v2\n"}}
	loop := New(driver, differ)

	outcome, err := loop.Run(context.Background(), Config{
		PlanContent:      "do the thing",
		WorkingDirectory: "/tmp",
		NewLogPath:       newLogPath(t),
		MaxRounds:        5,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Approved {
		t.Errorf("Approved = false, want true")
	}
	if outcome.RoundsRun != 2 {
		t.Errorf("RoundsRun = %d, want 2", outcome.RoundsRun)
	}
	if len(outcome.Transcript.Rounds) != 2 {
		t.Fatalf("Transcript.Rounds = %+v, want 2 rounds", outcome.Transcript.Rounds)
	}
	if outcome.Transcript.Rounds[0].Verdict != RequestChanges || outcome.Transcript.Rounds[1].Verdict != Approve {
		t.Errorf("round verdicts = %v, %v", outcome.Transcript.Rounds[0].Verdict, outcome.Transcript.Rounds[1].Verdict)
	}
}

func TestLoopFallsThroughAtMaxRounds(t *testing.T) {
	t.Parallel()

	driver := &agent.Fake{
		Responses: []agent.FakeResponse{
			{Lines: []string{`{"type":"assistant","message":{"content":[{"type":"text","text":"v1"}]}}`}, ExitCode: 0},
			{Lines: []string{`{"type":"assistant","message":{"content":[{"type":"text","text":"<verdict>REQUEST_CHANGES</verdict>"}]}}`}, ExitCode: 0},
		},
	}
	differ := &fakeDiffer{diffs: []string{"diff v1\n"}}
	loop := New(driver, differ)

	outcome, err := loop.Run(context.Background(), Config{
		PlanContent:      "do the thing",
		WorkingDirectory: "/tmp",
		NewLogPath:       newLogPath(t),
		MaxRounds:        2,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Approved {
		t.Errorf("Approved = true, want false (round budget exhausted)")
	}
	if outcome.RoundsRun != 2 {
		t.Errorf("RoundsRun = %d, want 2", outcome.RoundsRun)
	}
	if !outcome.InitialWorkerSucceeded {
		t.Errorf("InitialWorkerSucceeded = false, want true (caller still advances to in-review)")
	}
}

func TestLoopReturnsWhenReviewerFails(t *testing.T) {
	t.Parallel()

	driver := &agent.Fake{
		Responses: []agent.FakeResponse{
			{Lines: []string{`{"type":"assistant","message":{"content":[{"type":"text","text":"v1"}]}}`}, ExitCode: 0},
			{Lines: nil, ExitCode: 1},
		},
	}
	differ := &fakeDiffer{diffs: []string{"diff v1\n"}}
	loop := New(driver, differ)

	outcome, err := loop.Run(context.Background(), Config{
		PlanContent:      "do the thing",
		WorkingDirectory: "/tmp",
		NewLogPath:       newLogPath(t),
		MaxRounds:        5,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Approved {
		t.Errorf("Approved = true, want false (reviewer crashed)")
	}
	if len(outcome.Transcript.Rounds) != 0 {
		t.Errorf("Transcript.Rounds = %+v, want no rounds recorded for a crashed reviewer", outcome.Transcript.Rounds)
	}
}

func TestLoopReturnsWithoutReviewWhenInitialWorkerFails(t *testing.T) {
	t.Parallel()

	driver := &agent.Fake{
		Responses: []agent.FakeResponse{
			{Lines: nil, ExitCode: 1},
		},
	}
	differ := &fakeDiffer{diffs: []string{"should not be consulted"}}
	loop := New(driver, differ)

	outcome, err := loop.Run(context.Background(), Config{
		PlanContent:      "do the thing",
		WorkingDirectory: "/tmp",
		NewLogPath:       newLogPath(t),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.InitialWorkerSucceeded {
		t.Errorf("InitialWorkerSucceeded = true, want false")
	}
	if differ.calls != 0 {
		t.Errorf("DiffRange called %d times, want 0 after a failed initial worker run", differ.calls)
	}
}
