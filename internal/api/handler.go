// Package api provides HTTP handlers for the orcascore API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/orcascore/internal/llm"
	"github.com/ashureev/orcascore/internal/locks"
	"github.com/ashureev/orcascore/internal/provider"
	"github.com/ashureev/orcascore/internal/shared"
	"github.com/ashureev/orcascore/internal/store"
	"github.com/go-chi/chi/v5"
)

// maxBodySize bounds JSON request bodies. Chat payloads carry full
// conversations, so this is generous.
const maxBodySize = 8 << 20

// Handler provides common handler utilities.
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates a new Handler. A nil logger uses slog.Default.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// fail maps err to a status code, logs server-side failures, and writes the
// error message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err)
	} else {
		h.logger.Debug("Request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	Error(w, status, err.Error())
}

func statusFor(err error) int {
	var cfgErr *provider.ConfigError
	var apiErr *llm.APIError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, locks.ErrInvalidLockedBy), errors.Is(err, locks.ErrNegativeTimeout):
		return http.StatusBadRequest
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case shared.IsSQLiteConstraintError(err):
		return http.StatusConflict
	case errors.As(err, &apiErr), llm.IsTransient(err), llm.IsFatal(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body into v and writes a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// taskIDParam parses the {taskID} URL parameter and writes a 400 on failure.
func taskIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return idParam(w, r, "taskID", "task")
}

func projectIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return idParam(w, r, "projectID", "project")
}

func idParam(w http.ResponseWriter, r *http.Request, key, kind string) (int64, bool) {
	raw := chi.URLParam(r, key)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		Error(w, http.StatusBadRequest, fmt.Sprintf("invalid %s id %q", kind, raw))
		return 0, false
	}
	return id, true
}
