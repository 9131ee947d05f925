// Package statemachine enforces the legal status transitions for a
// plan — open, in-progress, in-review, completed — and the guards
// that gate starting and completing work across a dependency edge.
// Every guard returns a typed result rather than an error: a blocked
// transition is an ordinary outcome the caller inspects, not a
// failure mode.
package statemachine

import (
	"context"

	"github.com/MaxGfeller/claude-tracker/internal/clierr"
	"github.com/MaxGfeller/claude-tracker/internal/store"
)

// Guard is the result of a transition precondition check.
type Guard struct {
	Allowed   bool
	Reason    string
	BlockedBy *store.Plan
}

// CanStart reports whether plan may move from open to in-progress:
// true when it has no dependency, or its predecessor's status is
// in-review or completed.
func CanStart(ctx context.Context, st *store.Store, plan *store.Plan) (Guard, error) {
	if plan.DependsOnID == nil {
		return Guard{Allowed: true}, nil
	}
	predecessor, err := st.GetDependency(ctx, plan.ID)
	if err != nil {
		return Guard{}, err
	}
	if predecessor == nil || predecessor.Status == store.InReview || predecessor.Status == store.Completed {
		return Guard{Allowed: true}, nil
	}
	return Guard{
		Allowed:   false,
		Reason:    "predecessor " + predecessor.Title + " is not yet in-review or completed",
		BlockedBy: predecessor,
	}, nil
}

// CanComplete reports whether plan may move from in-review to
// completed: true when it has no dependency, or its predecessor's
// status is completed.
func CanComplete(ctx context.Context, st *store.Store, plan *store.Plan) (Guard, error) {
	if plan.DependsOnID == nil {
		return Guard{Allowed: true}, nil
	}
	predecessor, err := st.GetDependency(ctx, plan.ID)
	if err != nil {
		return Guard{}, err
	}
	if predecessor == nil || predecessor.Status == store.Completed {
		return Guard{Allowed: true}, nil
	}
	return Guard{
		Allowed:   false,
		Reason:    "predecessor " + predecessor.Title + " is not yet completed",
		BlockedBy: predecessor,
	}, nil
}

// CanCancel reports whether plan may be deleted: true when no other
// plan depends on it.
func CanCancel(ctx context.Context, st *store.Store, plan *store.Plan) (Guard, error) {
	dependents, err := st.GetDependents(ctx, plan.ID)
	if err != nil {
		return Guard{}, err
	}
	if len(dependents) == 0 {
		return Guard{Allowed: true}, nil
	}
	return Guard{
		Allowed:   false,
		Reason:    "plan has a live dependent and cannot be cancelled",
		BlockedBy: dependents[0],
	}, nil
}

// ClaimForWork transitions plan from open to in-progress. Returns a
// StateError if the plan is not open or CanStart is not satisfied.
func ClaimForWork(ctx context.Context, st *store.Store, plan *store.Plan) error {
	if plan.Status != store.StatusOpen {
		return clierr.StateError("plan %d is %s, not open", plan.ID, plan.Status)
	}
	guard, err := CanStart(ctx, st, plan)
	if err != nil {
		return err
	}
	if !guard.Allowed {
		return clierr.StateError("plan %d cannot start: %s", plan.ID, guard.Reason)
	}
	return st.UpdateStatus(ctx, plan.ID, store.InProgress)
}

// FinishReview transitions plan from in-progress to in-review, but
// only when the initial worker run succeeded. A failed initial run
// leaves the plan in-progress so the user can inspect logs and retry.
func FinishReview(ctx context.Context, st *store.Store, plan *store.Plan, initialWorkerSucceeded bool) error {
	if !initialWorkerSucceeded {
		return nil
	}
	return st.UpdateStatus(ctx, plan.ID, store.InReview)
}

// Reset transitions plan back to open from any state. Always allowed
// — callers handling the completed→open path are responsible for
// confirming branch deletion with the user before calling Reset.
func Reset(ctx context.Context, st *store.Store, plan *store.Plan) error {
	return st.UpdateStatus(ctx, plan.ID, store.StatusOpen)
}

// Complete transitions plan from in-review to completed. Returns a
// StateError if the plan is not in-review or CanComplete is not
// satisfied.
func Complete(ctx context.Context, st *store.Store, plan *store.Plan) error {
	if plan.Status != store.InReview {
		return clierr.StateError("plan %d is %s, not in-review", plan.ID, plan.Status)
	}
	guard, err := CanComplete(ctx, st, plan)
	if err != nil {
		return err
	}
	if !guard.Allowed {
		return clierr.StateError("plan %d cannot complete: %s", plan.ID, guard.Reason)
	}
	return st.UpdateStatus(ctx, plan.ID, store.Completed)
}

// Cancel deletes plan's record, regardless of its current status.
// Returns a StateError if CanCancel is not satisfied.
func Cancel(ctx context.Context, st *store.Store, plan *store.Plan) error {
	guard, err := CanCancel(ctx, st, plan)
	if err != nil {
		return err
	}
	if !guard.Allowed {
		return clierr.StateError("plan %d cannot be cancelled: %s", plan.ID, guard.Reason)
	}
	return st.Delete(ctx, plan.ID)
}
