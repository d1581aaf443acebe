package api

import (
	"context"
	"net/http"

	"github.com/ashureev/orcascore/internal/domain"
	"github.com/go-chi/chi/v5"
)

// LockService is the edit lock surface exposed over HTTP.
type LockService interface {
	Acquire(ctx context.Context, taskID int64, lockedBy string, originalContent *string) (bool, error)
	Release(ctx context.Context, taskID int64) error
	Check(ctx context.Context, taskID int64) (domain.LockStatus, error)
	OriginalContent(ctx context.Context, taskID int64) (string, error)
	ForceReleaseAll(ctx context.Context) (int64, error)
	CleanupStale(ctx context.Context, timeoutMinutes int) (int64, error)
}

// LockHandler handles edit lock endpoints.
type LockHandler struct {
	*Handler
	locks LockService
}

// NewLockHandler creates a lock handler.
func NewLockHandler(base *Handler, locks LockService) *LockHandler {
	return &LockHandler{Handler: base, locks: locks}
}

// RegisterRoutes registers lock routes.
func (h *LockHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/locks", func(r chi.Router) {
		r.Delete("/", h.ForceReleaseAll)
		r.Post("/cleanup", h.Cleanup)
		r.Post("/{taskID}", h.Acquire)
		r.Delete("/{taskID}", h.Release)
		r.Get("/{taskID}", h.Check)
		r.Get("/{taskID}/original", h.Original)
	})
}

type acquireLockRequest struct {
	LockedBy        string  `json:"locked_by"`
	OriginalContent *string `json:"original_content"`
}

// Acquire takes the lock for a task. A held lock is reported as
// acquired=false, not as an error.
func (h *LockHandler) Acquire(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	var req acquireLockRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acquired, err := h.locks.Acquire(r.Context(), taskID, req.LockedBy, req.OriginalContent)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"acquired": acquired})
}

// Release drops the lock for a task. Releasing an unlocked task succeeds.
func (h *LockHandler) Release(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	if err := h.locks.Release(r.Context(), taskID); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "released"})
}

// Check reports the lock state of a task.
func (h *LockHandler) Check(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	status, err := h.locks.Check(r.Context(), taskID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, status)
}

// Original returns the content snapshot stored with the lock.
func (h *LockHandler) Original(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	content, err := h.locks.OriginalContent(r.Context(), taskID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"content": content})
}

// ForceReleaseAll clears every lock, typically after a crash.
func (h *LockHandler) ForceReleaseAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.locks.ForceReleaseAll(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int64{"released": n})
}

type cleanupRequest struct {
	TimeoutMinutes *int `json:"timeout_minutes"`
}

// Cleanup removes locks older than timeout_minutes.
func (h *LockHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TimeoutMinutes == nil {
		Error(w, http.StatusBadRequest, "timeout_minutes is required")
		return
	}

	n, err := h.locks.CleanupStale(r.Context(), *req.TimeoutMinutes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int64{"removed": n})
}
