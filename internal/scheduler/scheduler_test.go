package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MaxGfeller/claude-tracker/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.db")
	s, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunExecutesPlansInSubmissionOrderWithinAProject(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	a, _ := s.AddPlan(ctx, "/repo/a.md", "/repo", "A")
	b, _ := s.AddPlan(ctx, "/repo/b.md", "/repo", "B")
	c, _ := s.AddPlan(ctx, "/repo/c.md", "/repo", "C")

	var mu sync.Mutex
	var order []int64
	sched := New(s, func(ctx context.Context, plan *store.Plan) error {
		mu.Lock()
		order = append(order, plan.ID)
		mu.Unlock()
		return nil
	})

	results, err := sched.Run(ctx, []int64{a.ID, b.ID, c.ID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %+v, want empty (no errors)", results)
	}
	if len(order) != 3 || order[0] != a.ID || order[1] != b.ID || order[2] != c.ID {
		t.Errorf("order = %v, want [%d %d %d]", order, a.ID, b.ID, c.ID)
	}
}

func TestRunExecutesDistinctProjectsConcurrently(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	var plans []*store.Plan
	for i := 0; i < 4; i++ {
		p, _ := s.AddPlan(ctx, fmt.Sprintf("/repo%d/a.md", i), fmt.Sprintf("/repo%d", i), "A")
		plans = append(plans, p)
	}

	var (
		mu      sync.Mutex
		inFlight int
		maxSeen int
	)
	release := make(chan struct{})
	var once sync.Once

	sched := New(s, func(ctx context.Context, plan *store.Plan) error {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		count := inFlight
		mu.Unlock()

		if count == len(plans) {
			once.Do(func() { close(release) })
		}
		<-release

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	})

	ids := make([]int64, len(plans))
	for i, p := range plans {
		ids[i] = p.ID
	}

	if _, err := sched.Run(ctx, ids); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if maxSeen < 2 {
		t.Errorf("max concurrent plans = %d, want at least 2 (distinct projects run concurrently)", maxSeen)
	}
}

func TestRunSkipsPlanBlockedByOpenPredecessor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	predecessor, _ := s.AddPlan(ctx, "/repo/a.md", "/repo", "A")
	dependent, _ := s.AddPlan(ctx, "/repo/b.md", "/repo", "B")
	if err := s.SetDependency(ctx, dependent.ID, &predecessor.ID); err != nil {
		t.Fatalf("SetDependency: %v", err)
	}

	var mu sync.Mutex
	var ran []int64
	sched := New(s, func(ctx context.Context, plan *store.Plan) error {
		mu.Lock()
		ran = append(ran, plan.ID)
		mu.Unlock()
		return nil
	})

	results, err := sched.Run(ctx, []int64{predecessor.ID, dependent.ID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %+v, want empty — a skip is not an error", results)
	}
	if len(ran) != 1 || ran[0] != predecessor.ID {
		t.Errorf("ran = %v, want only the predecessor (dependent is skipped, not queued)", ran)
	}
}

func TestRunCollectsPerPlanErrorsWithoutCancellingSiblings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	a, _ := s.AddPlan(ctx, "/repo/a.md", "/repo", "A")
	b, _ := s.AddPlan(ctx, "/repo/b.md", "/repo", "B")

	var mu sync.Mutex
	var ran []int64
	sched := New(s, func(ctx context.Context, plan *store.Plan) error {
		mu.Lock()
		ran = append(ran, plan.ID)
		mu.Unlock()
		if plan.ID == a.ID {
			return fmt.Errorf("boom")
		}
		return nil
	})

	results, err := sched.Run(ctx, []int64{a.ID, b.ID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[a.ID] == nil {
		t.Errorf("results[a] = nil, want the plan's error")
	}
	if _, failed := results[b.ID]; failed {
		t.Errorf("results[b] = %v, want no entry (b succeeded)", results[b.ID])
	}
	if len(ran) != 2 {
		t.Errorf("ran = %v, want both plans to run despite a's failure", ran)
	}
}

type fakeQuota struct {
	allow bool
	err   error
}

func (f fakeQuota) Allow(ctx context.Context) (bool, error) { return f.allow, f.err }

func TestRunAbortsWholeBatchWhenQuotaDenies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	a, _ := s.AddPlan(ctx, "/repo/a.md", "/repo", "A")

	var ran bool
	sched := New(s, func(ctx context.Context, plan *store.Plan) error {
		ran = true
		return nil
	})
	sched.Quota = fakeQuota{allow: false}

	results, err := sched.Run(ctx, []int64{a.ID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ran {
		t.Errorf("Work ran, want no plan run when quota denies the batch")
	}
	if len(results) != 0 {
		t.Errorf("results = %+v, want empty", results)
	}
}

func TestRunPropagatesQuotaCheckError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	a, _ := s.AddPlan(ctx, "/repo/a.md", "/repo", "A")

	sched := New(s, func(ctx context.Context, plan *store.Plan) error { return nil })
	sched.Quota = fakeQuota{err: fmt.Errorf("quota service unreachable")}

	if _, err := sched.Run(ctx, []int64{a.ID}); err == nil {
		t.Fatalf("Run = nil error, want the quota checker's error")
	}
}
