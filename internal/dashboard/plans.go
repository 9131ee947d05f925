package dashboard

import (
	"context"
	"net/http"
	"strconv"

	"github.com/MaxGfeller/claude-tracker/internal/clierr"
	"github.com/MaxGfeller/claude-tracker/internal/orchestrate"
	"github.com/MaxGfeller/claude-tracker/internal/scheduler"
	"github.com/MaxGfeller/claude-tracker/internal/statemachine"
	"github.com/MaxGfeller/claude-tracker/internal/store"
)

func pathPlanID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, clierr.InputError("invalid plan id %q", r.PathValue("id"))
	}
	return id, nil
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.Store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathPlanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	plan, err := s.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

type createPlanRequest struct {
	Title       string `json:"title"`
	ProjectPath string `json:"projectPath"`
	Description string `json:"description"`
	DependsOnID *int64 `json:"dependsOnId"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Title == "" || req.ProjectPath == "" {
		writeError(w, clierr.InputError("title and projectPath are required"))
		return
	}

	ctx := r.Context()
	plan, err := s.Store.CreateTask(ctx, req.ProjectPath, req.Title, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.DependsOnID != nil {
		if err := s.Store.SetDependency(ctx, plan.ID, req.DependsOnID); err != nil {
			writeError(w, err)
			return
		}
		plan, err = s.Store.Get(ctx, plan.ID)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathPlanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	plan, err := s.Store.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if plan.Status != store.StatusOpen {
		writeError(w, clierr.StateError("plan %d is %s, not open; only an open plan may be deleted directly (use cancel otherwise)", id, plan.Status))
		return
	}
	if err := statemachine.Cancel(ctx, s.Store, plan); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetDependency(w http.ResponseWriter, r *http.Request) {
	id, err := pathPlanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	dependency, err := s.Store.GetDependency(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dependency)
}

type setDependencyRequest struct {
	DependsOnID *int64 `json:"dependsOnId"`
}

func (s *Server) handleSetDependency(w http.ResponseWriter, r *http.Request) {
	id, err := pathPlanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req setDependencyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Store.SetDependency(r.Context(), id, req.DependsOnID); err != nil {
		writeError(w, err)
		return
	}
	plan, err := s.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleDependents(w http.ResponseWriter, r *http.Request) {
	id, err := pathPlanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	dependents, err := s.Store.GetDependents(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dependents)
}

func (s *Server) handleCanStart(w http.ResponseWriter, r *http.Request) {
	id, err := pathPlanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	plan, err := s.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	guard, err := statemachine.CanStart(r.Context(), s.Store, plan)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, guard)
}

// handleWork spawns a worker for one plan, detached from the request:
// the HTTP response returns as soon as the run is accepted, not when
// it finishes — a full run can take minutes.
func (s *Server) handleWork(w http.ResponseWriter, r *http.Request) {
	id, err := pathPlanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	plan, err := s.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	guard, err := statemachine.CanStart(r.Context(), s.Store, plan)
	if err != nil {
		writeError(w, err)
		return
	}
	if !guard.Allowed {
		writeError(w, clierr.StateError("plan %d cannot start: %s", id, guard.Reason))
		return
	}

	s.mu.Lock()
	if s.running[id] {
		s.mu.Unlock()
		writeError(w, clierr.StateError("plan %d is already running", id))
		return
	}
	s.running[id] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.running, id)
			s.mu.Unlock()
		}()
		if err := s.runner().RunPlan(context.Background(), plan); err != nil {
			s.Logger.Error("plan run failed", "plan_id", id, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, plan)
}

// handleWorkAll spawns workers for every unblocked open plan,
// partitioned and scheduled by internal/scheduler, detached from the
// request just like a single work dispatch.
func (s *Server) handleWorkAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	plans, err := s.Store.UnblockedOpenTasks(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	ids := make([]int64, len(plans))
	for i, p := range plans {
		ids[i] = p.ID
	}

	sched := scheduler.New(s.Store, func(ctx context.Context, plan *store.Plan) error {
		return s.runner().RunPlan(ctx, plan)
	})
	sched.Quota = s.Quota

	go func() {
		results, err := sched.Run(context.Background(), ids)
		if err != nil {
			s.Logger.Error("scheduled batch aborted", "error", err)
			return
		}
		for id, runErr := range results {
			s.Logger.Error("plan run failed", "plan_id", id, "error", runErr)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"scheduled": ids})
}

func (s *Server) runner() *orchestrate.Runner {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	return &orchestrate.Runner{
		Store:     s.Store,
		Driver:    s.Driver,
		Worktrees: s.Worktrees,
		Config:    cfg,
		LogsDir:   s.LogsDir,
	}
}
