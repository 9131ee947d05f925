// Package dashboard exposes claude-tracker's plan registry and
// scheduler over a loopback HTTP API: JSON CRUD for plans, SSE log
// tailing, and the one-shot/chat agent calls a plan-drafting UI needs.
// It never binds beyond localhost and has no authentication layer of
// its own — the caller is trusted by construction.
package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MaxGfeller/claude-tracker/internal/agent"
	"github.com/MaxGfeller/claude-tracker/internal/clierr"
	"github.com/MaxGfeller/claude-tracker/internal/config"
	"github.com/MaxGfeller/claude-tracker/internal/scheduler"
	"github.com/MaxGfeller/claude-tracker/internal/store"
	"github.com/MaxGfeller/claude-tracker/internal/worktree"
)

// Server holds every collaborator a handler needs. It is built once
// by cmd/tracker's `ui` command, which serves its Handler from an
// http.Server on a loopback listener.
type Server struct {
	Store      *store.Store
	Driver     agent.Driver
	Worktrees  *worktree.Manager
	Quota      scheduler.QuotaChecker
	LogsDir    string
	ConfigPath string
	Logger     *slog.Logger

	startedAt time.Time

	mu      sync.Mutex
	cfg     *config.Config
	running map[int64]bool // plans currently being worked, guards double dispatch
}

// New returns a Server with cfg loaded from ConfigPath (or defaults on
// a missing file).
func New(st *store.Store, driver agent.Driver, worktrees *worktree.Manager, logsDir, configPath string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		Store:          st,
		Driver:         driver,
		Worktrees:      worktrees,
		Quota:          scheduler.NoopQuotaChecker{},
		LogsDir:        logsDir,
		ConfigPath:     configPath,
		Logger:         logger,
		startedAt:      time.Now(),
		cfg:            config.LoadOrDefault(configPath, logger),
		running:        make(map[int64]bool),
	}
}

// Handler builds the routed mux. Every plan sub-resource matches
// "{id}" via the standard library's method-and-pattern routing
// (net/http, Go 1.22+).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/config", s.handlePutConfig)

	mux.HandleFunc("GET /api/usage", s.handleUsage)
	mux.HandleFunc("GET /api/worktrees/orphans", s.handleWorktreeOrphans)

	mux.HandleFunc("GET /api/plans", s.handleListPlans)
	mux.HandleFunc("POST /api/plans", s.handleCreatePlan)
	mux.HandleFunc("POST /api/plans/work-all", s.handleWorkAll)
	mux.HandleFunc("GET /api/plans/{id}", s.handleGetPlan)
	mux.HandleFunc("DELETE /api/plans/{id}", s.handleDeletePlan)
	mux.HandleFunc("POST /api/plans/{id}/work", s.handleWork)
	mux.HandleFunc("GET /api/plans/{id}/logs", s.handleLogs)
	mux.HandleFunc("GET /api/plans/{id}/plan-content", s.handlePlanContent)
	mux.HandleFunc("POST /api/plans/{id}/plan", s.handleGeneratePlan)
	mux.HandleFunc("POST /api/plans/{id}/chat", s.handleChat)
	mux.HandleFunc("GET /api/plans/{id}/dependency", s.handleGetDependency)
	mux.HandleFunc("PUT /api/plans/{id}/dependency", s.handleSetDependency)
	mux.HandleFunc("GET /api/plans/{id}/dependents", s.handleDependents)
	mux.HandleFunc("GET /api/plans/{id}/can-start", s.handleCanStart)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.startedAt).String(),
		"version": "dev",
	})
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {"error": string}, deriving the HTTP
// status from its clierr.Kind — the dashboard never answers with a
// bare 500 and no body.
func writeError(w http.ResponseWriter, err error) {
	kind, ok := clierr.KindOf(err)
	status := http.StatusInternalServerError
	if ok {
		status = clierr.HTTPStatus(kind)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return clierr.InputError("decoding request body: %w", err)
	}
	return nil
}
