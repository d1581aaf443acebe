package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ashureev/orcascore/internal/domain"
	"github.com/ashureev/orcascore/internal/store"
	"github.com/go-chi/chi/v5"
)

// ProjectStore is the per-project persistence used by ProjectHandler.
type ProjectStore interface {
	GetProjectContext(ctx context.Context, projectID int64) (*domain.ProjectContext, error)
	UpsertProjectContext(ctx context.Context, projectID int64, content string) error
}

// ProjectHandler serves a project's context markdown.
type ProjectHandler struct {
	*Handler
	projects ProjectStore
}

// NewProjectHandler creates a project handler.
func NewProjectHandler(base *Handler, projects ProjectStore) *ProjectHandler {
	return &ProjectHandler{Handler: base, projects: projects}
}

// RegisterRoutes registers project routes.
func (h *ProjectHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/projects/{projectID}", func(r chi.Router) {
		r.Get("/context", h.GetContext)
		r.Put("/context", h.PutContext)
	})
}

// GetContext returns a project's context; a project without one has empty content.
func (h *ProjectHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}
	pc, err := h.projects.GetProjectContext(r.Context(), projectID)
	if errors.Is(err, store.ErrNotFound) {
		JSON(w, http.StatusOK, domain.ProjectContext{ProjectID: projectID})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, pc)
}

type putContextRequest struct {
	Content string `json:"content"`
}

// PutContext replaces a project's context markdown.
func (h *ProjectHandler) PutContext(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}
	var req putContextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.projects.UpsertProjectContext(r.Context(), projectID, req.Content); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"project_id": projectID, "content": req.Content})
}
