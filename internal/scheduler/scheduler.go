// Package scheduler drives a batch of plans to completion: plans in
// the same project run strictly in the caller's submission order,
// while distinct projects run concurrently. No group's failure
// cancels another group — every plan's outcome is collected
// independently.
package scheduler

import (
	"context"
	"sync"

	"github.com/MaxGfeller/claude-tracker/internal/statemachine"
	"github.com/MaxGfeller/claude-tracker/internal/store"
)

// QuotaChecker is an optional pre-flight usage/quota check, gated by
// configuration. The no-op implementation always allows.
type QuotaChecker interface {
	// Allow reports whether the batch may proceed. A false result
	// with a nil error means the caller should abort the whole
	// batch without running any plan.
	Allow(ctx context.Context) (bool, error)
}

// NoopQuotaChecker always allows.
type NoopQuotaChecker struct{}

func (NoopQuotaChecker) Allow(ctx context.Context) (bool, error) { return true, nil }

// Work runs a single plan to completion (worker + review loop) and
// advances its status. Implemented by the caller — cmd/tracker wires
// this to internal/review.Loop plus internal/statemachine.
type Work func(ctx context.Context, plan *store.Plan) error

// Scheduler partitions a batch of plans by project and runs each
// project's plans sequentially while projects themselves run
// concurrently.
type Scheduler struct {
	Store *store.Store
	Quota QuotaChecker
	Work  Work
}

// New returns a Scheduler with a no-op quota checker; set s.Quota to
// override.
func New(st *store.Store, work Work) *Scheduler {
	return &Scheduler{Store: st, Quota: NoopQuotaChecker{}, Work: work}
}

// Run claims and works every plan in ids, grouped by project, with
// each project's plans run sequentially and projects run concurrently.
// The result is keyed by plan id so a batch where one project fails
// still reports every other plan's outcome individually. A plan
// blocked by StateMachine.CanStart is skipped, not queued, and is
// absent from the result — it is not an error.
func (s *Scheduler) Run(ctx context.Context, ids []int64) (map[int64]error, error) {
	results := make(map[int64]error)

	allowed, err := s.Quota.Allow(ctx)
	if err != nil {
		return results, err
	}
	if !allowed {
		return results, nil
	}

	groups := make(map[string][]int64)
	var order []string
	for _, id := range ids {
		plan, err := s.Store.Get(ctx, id)
		if err != nil {
			results[id] = err
			continue
		}
		if _, seen := groups[plan.ProjectPath]; !seen {
			order = append(order, plan.ProjectPath)
		}
		groups[plan.ProjectPath] = append(groups[plan.ProjectPath], id)
	}

	var (
		waitGroup sync.WaitGroup
		mu        sync.Mutex
	)
	for _, projectPath := range order {
		projectIDs := groups[projectPath]
		waitGroup.Add(1)
		go func(projectIDs []int64) {
			defer waitGroup.Done()
			s.runProjectSequence(ctx, projectIDs, &mu, results)
		}(projectIDs)
	}
	waitGroup.Wait()

	return results, nil
}

func (s *Scheduler) runProjectSequence(ctx context.Context, ids []int64, mu *sync.Mutex, results map[int64]error) {
	for _, id := range ids {
		plan, err := s.Store.Get(ctx, id)
		if err != nil {
			mu.Lock()
			results[id] = err
			mu.Unlock()
			continue
		}

		guard, err := statemachine.CanStart(ctx, s.Store, plan)
		if err != nil {
			mu.Lock()
			results[id] = err
			mu.Unlock()
			continue
		}
		if !guard.Allowed {
			continue // skipped, not queued
		}

		err = s.Work(ctx, plan)

		mu.Lock()
		if err != nil {
			results[id] = err
		}
		mu.Unlock()
	}
}
