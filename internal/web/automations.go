package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/haasonsaas/agentcore/internal/agent"
	"github.com/haasonsaas/agentcore/internal/auth"
	"github.com/haasonsaas/agentcore/internal/automation"
	"github.com/haasonsaas/agentcore/pkg/models"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// runResponse is the body returned by POST /v1/automations/{id}/run.
type runResponse struct {
	Task    *models.Automation    `json:"task,omitempty"`
	Run     *models.AutomationRun `json:"run,omitempty"`
	Skipped bool                  `json:"skipped,omitempty"`
	Reason  string                `json:"reason,omitempty"`
	Error   string                `json:"error,omitempty"`
}

func (s *Server) runtimeOrUnavailable(w http.ResponseWriter) (*automation.Runtime, bool) {
	if s.config.Runtime == nil {
		writeError(w, http.StatusServiceUnavailable, "automations are not configured")
		return nil, false
	}
	return s.config.Runtime, true
}

func (s *Server) handleListAutomations(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.runtimeOrUnavailable(w)
	if !ok {
		return
	}
	identity, _ := auth.IdentityFromContext(r.Context())
	status := models.AutomationStatus(r.URL.Query().Get("status"))
	tasks, err := rt.Store().ListTasks(r.Context(), identity.WorkspaceID, status)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*models.Automation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleGetAutomation(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.runtimeOrUnavailable(w)
	if !ok {
		return
	}
	identity, _ := auth.IdentityFromContext(r.Context())
	task, err := rt.Store().GetTask(r.Context(), identity.WorkspaceID, r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleRunAutomation(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.runtimeOrUnavailable(w)
	if !ok {
		return
	}
	identity, _ := auth.IdentityFromContext(r.Context())
	result, err := rt.RunTaskNow(r.Context(), automation.RunRequest{
		TaskID:            r.PathValue("id"),
		WorkspaceID:       identity.WorkspaceID,
		TriggeredByUserID: identity.UserID,
		Trigger:           models.TriggerManual,
	})
	if err != nil && result == nil {
		s.storeError(w, err)
		return
	}
	if err != nil {
		s.logger.Error("manual run not fully recorded", "task_id", r.PathValue("id"), "error", err)
	}

	resp := runResponse{
		Task:    result.Task,
		Run:     result.Run,
		Skipped: result.Skipped,
		Reason:  result.Reason,
	}
	if result.Err != nil {
		resp.Error = agent.UserFacingMessage(result.Err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.runtimeOrUnavailable(w)
	if !ok {
		return
	}
	identity, _ := auth.IdentityFromContext(r.Context())
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	taskID := r.PathValue("id")
	if _, err := rt.Store().GetTask(r.Context(), identity.WorkspaceID, taskID); err != nil {
		s.storeError(w, err)
		return
	}
	runs, err := rt.Store().ListRuns(r.Context(), identity.WorkspaceID, taskID, limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if runs == nil {
		runs = []*models.AutomationRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, automation.ErrTaskNotFound), errors.Is(err, automation.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "automation not found")
	default:
		s.logger.Error("automation store error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
