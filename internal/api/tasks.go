package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ashureev/orcascore/internal/domain"
	"github.com/ashureev/orcascore/internal/store"
	"github.com/go-chi/chi/v5"
)

// TaskStore is the per-task persistence used by TaskHandler.
type TaskStore interface {
	ListSubtasks(ctx context.Context, taskID int64) ([]domain.Subtask, error)
	GetTaskNote(ctx context.Context, taskID int64) (*domain.TaskNote, error)
	UpsertTaskNote(ctx context.Context, taskID int64, content string) error
}

// TaskHandler serves a task's subtasks and shared notes.
type TaskHandler struct {
	*Handler
	tasks TaskStore
}

// NewTaskHandler creates a task handler.
func NewTaskHandler(base *Handler, tasks TaskStore) *TaskHandler {
	return &TaskHandler{Handler: base, tasks: tasks}
}

// RegisterRoutes registers task routes.
func (h *TaskHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/tasks/{taskID}", func(r chi.Router) {
		r.Get("/subtasks", h.Subtasks)
		r.Get("/notes", h.GetNotes)
		r.Put("/notes", h.PutNotes)
	})
}

// Subtasks lists the subtasks of a task.
func (h *TaskHandler) Subtasks(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	subtasks, err := h.tasks.ListSubtasks(r.Context(), taskID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if subtasks == nil {
		subtasks = []domain.Subtask{}
	}
	JSON(w, http.StatusOK, subtasks)
}

// GetNotes returns a task's notes; a task without notes has empty content.
func (h *TaskHandler) GetNotes(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	note, err := h.tasks.GetTaskNote(r.Context(), taskID)
	if errors.Is(err, store.ErrNotFound) {
		JSON(w, http.StatusOK, domain.TaskNote{TaskID: taskID})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, note)
}

type putNotesRequest struct {
	Content string `json:"content"`
}

// PutNotes replaces a task's notes.
func (h *TaskHandler) PutNotes(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	var req putNotesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.tasks.UpsertTaskNote(r.Context(), taskID, req.Content); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"task_id": taskID, "content": req.Content})
}
