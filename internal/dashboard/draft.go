package dashboard

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/MaxGfeller/claude-tracker/internal/agent"
	"github.com/MaxGfeller/claude-tracker/internal/clierr"
	"github.com/MaxGfeller/claude-tracker/internal/orchestrate"
	"github.com/MaxGfeller/claude-tracker/internal/review"
	"github.com/MaxGfeller/claude-tracker/internal/store"
)

// planFilePath returns where a plan's markdown body lives, deriving a
// default location under the project when create_task left plan_path
// empty — the generate-plan and chat endpoints are the only callers
// that ever need to invent one.
func planFilePath(projectPath string, planID int64, existing string) string {
	if existing != "" {
		return existing
	}
	return orchestrate.DefaultPlanPath(projectPath, planID)
}

func (s *Server) handlePlanContent(w http.ResponseWriter, r *http.Request) {
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
	content, err := orchestrate.PlanBody(plan)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, content)
}

type generatePlanRequest struct {
	Description string `json:"description"`
}

// handleGeneratePlan drives a one-shot planning session, writes the
// result to the plan's file (creating its default path if needed),
// and returns the updated record. Synchronous: a drafting run is
// expected to take seconds, not minutes, unlike a full work cycle.
func (s *Server) handleGeneratePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathPlanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req generatePlanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	plan, err := s.Store.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	description := req.Description
	if description == "" {
		description = plan.Description
	}

	sessionID := uuid.NewString()
	result, err := s.Driver.Run(ctx, agent.Config{
		Prompt:           review.DraftPrompt(description),
		SessionID:        sessionID,
		SkipPermissions:  s.skipPermissions(),
		WorkingDirectory: plan.ProjectPath,
		LogPath:          agent.NewLogPath(s.LogsDir, plan.ID)(agent.RolePlanner),
		PlanID:           plan.ID,
		Role:             agent.RolePlanner,
	})
	if err != nil {
		writeError(w, clierr.AgentError("drafting plan: %w", err))
		return
	}
	if result.ExitCode != 0 {
		writeError(w, clierr.AgentError("drafting session exited with code %d", result.ExitCode))
		return
	}

	path := planFilePath(plan.ProjectPath, plan.ID, plan.PlanPath)
	if err := writePlanFile(path, result.Transcript); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Store.UpdatePlanPath(ctx, plan.ID, path); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Store.UpdatePlanningSession(ctx, plan.ID, sessionID); err != nil {
		writeError(w, err)
		return
	}

	plan, err = s.Store.Get(ctx, plan.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

type chatRequest struct {
	Message string `json:"message"`
}

// handleChat runs one turn of the iterative plan-editing chat and
// streams the agent's raw log lines over SSE as they are written,
// exactly as handleLogs does for a work run, then emits a final
// "event: done" once the plan file has been rewritten.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id, err := pathPlanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	plan, err := s.Store.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("response writer does not support streaming"))
		return
	}

	planContent, err := orchestrate.PlanBody(plan)
	if err != nil {
		writeError(w, err)
		return
	}

	resume := plan.PlanningSessionID != ""
	sessionID := plan.PlanningSessionID
	if !resume {
		sessionID = uuid.NewString()
	}
	logPath := agent.NewLogPath(s.LogsDir, plan.ID)(agent.RolePlanner)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	type runOutcome struct {
		result agent.Result
		err    error
	}
	done := make(chan runOutcome, 1)
	go func() {
		result, err := s.Driver.Run(context.Background(), agent.Config{
			Prompt:           review.ChatPrompt(planContent, req.Message),
			SessionID:        sessionID,
			Resume:           resume,
			SkipPermissions:  s.skipPermissions(),
			WorkingDirectory: plan.ProjectPath,
			LogPath:          logPath,
			PlanID:           plan.ID,
			Role:             agent.RolePlanner,
		})
		done <- runOutcome{result, err}
	}()

	var offset int64
	ticker := time.NewTicker(logPollInterval)
	defer ticker.Stop()

	for {
		offset = streamAppendedLines(w, flusher, logPath, offset)

		select {
		case outcome := <-done:
			streamAppendedLines(w, flusher, logPath, offset)
			s.finishChatTurn(ctx, w, flusher, plan, sessionID, outcome.result, outcome.err)
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) finishChatTurn(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, plan *store.Plan, sessionID string, result agent.Result, err error) {
	if err != nil {
		fmt.Fprintf(w, "event: done\ndata: error\n\n")
		flusher.Flush()
		return
	}
	if result.ExitCode != 0 {
		fmt.Fprintf(w, "event: done\ndata: error\n\n")
		flusher.Flush()
		return
	}

	path := planFilePath(plan.ProjectPath, plan.ID, plan.PlanPath)
	if err := writePlanFile(path, result.Transcript); err != nil {
		fmt.Fprintf(w, "event: done\ndata: error\n\n")
		flusher.Flush()
		return
	}
	_ = s.Store.UpdatePlanPath(ctx, plan.ID, path)
	_ = s.Store.UpdatePlanningSession(ctx, plan.ID, sessionID)

	fmt.Fprintf(w, "event: done\ndata: ok\n\n")
	flusher.Flush()
}

// streamAppendedLines writes any log lines appended since offset as
// SSE "log" events and returns the new offset.
func streamAppendedLines(w http.ResponseWriter, flusher http.Flusher, path string, offset int64) int64 {
	file, err := os.Open(path)
	if err != nil {
		return offset
	}
	defer file.Close()

	if _, err := file.Seek(offset, 0); err != nil {
		return offset
	}
	reader := bufio.NewReader(file)
	for {
		line, readErr := reader.ReadString('\n')
		if line != "" {
			fmt.Fprintf(w, "event: log\ndata: %s\n\n", trimNewline(line))
			flusher.Flush()
			offset += int64(len(line))
		}
		if readErr != nil {
			break
		}
	}
	return offset
}

func writePlanFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return clierr.IOError("creating plan directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return clierr.IOError("writing plan file %s: %w", path, err)
	}
	return nil
}

func (s *Server) skipPermissions() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.SkipPermissions
}
