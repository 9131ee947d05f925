package dashboard

import (
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/MaxGfeller/claude-tracker/internal/config"
	"github.com/MaxGfeller/claude-tracker/internal/worktree"
)

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	cfg := config.Default()
	if err := decodeJSON(r, cfg); err != nil {
		writeError(w, err)
		return
	}
	if err := config.Save(s.ConfigPath, cfg); err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, cfg)
}

// usageSnapshot is what GET /api/usage reports: the configured
// thresholds the scheduler's quota pre-flight checks against, plus
// whatever the live QuotaChecker currently reports. There is no
// metered billing API wired in, so the "current" half of the snapshot
// is only as informative as the configured QuotaChecker is.
type usageSnapshot struct {
	Limits  config.UsageLimits `json:"limits"`
	Allowed bool               `json:"allowed"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	limits := s.cfg.UsageLimits
	s.mu.Unlock()

	allowed, err := s.Quota.Allow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usageSnapshot{Limits: limits, Allowed: allowed})
}

type orphanView struct {
	ProjectSlug string `json:"projectSlug"`
	PlanID      int64  `json:"planId"`
	Path        string `json:"path"`
	SizeBytes   int64  `json:"sizeBytes"`
	Size        string `json:"size"`
}

// handleWorktreeOrphans lists worktrees on disk that no plan in the
// Store claims any more — left behind by a deleted or reset plan that
// never ran cleanup.
func (s *Server) handleWorktreeOrphans(w http.ResponseWriter, r *http.Request) {
	if s.Worktrees == nil {
		writeJSON(w, http.StatusOK, []orphanView{})
		return
	}

	ctx := r.Context()
	plans, err := s.Store.List(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	live := make(map[string]bool, len(plans))
	for _, plan := range plans {
		live[worktree.Slug(plan.ProjectPath)+"/"+strconv.FormatInt(plan.ID, 10)] = true
	}
	known := func(projectSlug string, planID int64) bool {
		return live[projectSlug+"/"+strconv.FormatInt(planID, 10)]
	}

	orphans, err := s.Worktrees.ScanOrphans(known)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]orphanView, len(orphans))
	for i, o := range orphans {
		size, _ := worktree.DiskUsageAt(o.Path)
		views[i] = orphanView{
			ProjectSlug: o.ProjectSlug,
			PlanID:      o.PlanID,
			Path:        o.Path,
			SizeBytes:   size,
			Size:        humanize.Bytes(uint64(size)),
		}
	}
	writeJSON(w, http.StatusOK, views)
}
