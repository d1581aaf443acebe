package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// PlanningStarter launches a background planning run.
type PlanningStarter interface {
	Start(taskID int64, title string, description *string) string
}

// PlanningHandler starts planning runs.
type PlanningHandler struct {
	*Handler
	runner PlanningStarter
}

// NewPlanningHandler creates a planning handler.
func NewPlanningHandler(base *Handler, runner PlanningStarter) *PlanningHandler {
	return &PlanningHandler{Handler: base, runner: runner}
}

// RegisterRoutes registers planning routes.
func (h *PlanningHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/planning", h.StartPlanning)
}

type startPlanningRequest struct {
	TaskID          *int64  `json:"task_id"`
	TaskTitle       string  `json:"task_title"`
	TaskDescription *string `json:"task_description"`
}

// StartPlanning launches a run and returns before it finishes. The outcome
// arrives later as a task-planning-complete event.
func (h *PlanningHandler) StartPlanning(w http.ResponseWriter, r *http.Request) {
	var req startPlanningRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TaskID == nil {
		Error(w, http.StatusBadRequest, "task_id is required")
		return
	}
	if strings.TrimSpace(req.TaskTitle) == "" {
		Error(w, http.StatusBadRequest, "task_title is required")
		return
	}

	runID := h.runner.Start(*req.TaskID, req.TaskTitle, req.TaskDescription)
	h.logger.Info("Task planning started", "task_id", *req.TaskID, "run_id", runID)

	JSON(w, http.StatusAccepted, map[string]string{
		"status": "Task planning started",
		"run_id": runID,
	})
}
