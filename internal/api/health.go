package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SubscriberCounter reports attached event listeners.
type SubscriberCounter interface {
	Subscribers() int
}

// HealthHandler reports dependency status. The bare liveness probe is served
// by chi's Heartbeat middleware at /health.
type HealthHandler struct {
	*Handler
	db     Pinger
	events SubscriberCounter
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(base *Handler, db Pinger, events SubscriberCounter) *HealthHandler {
	return &HealthHandler{Handler: base, db: db, events: events}
}

// RegisterRoutes registers the detailed health route.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.Health)
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]any{"api": "ok"}
	status := map[string]any{"status": "healthy", "checks": checks}
	statusCode := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}
	if h.events != nil {
		checks["event_subscribers"] = h.events.Subscribers()
	}

	JSON(w, statusCode, status)
}
