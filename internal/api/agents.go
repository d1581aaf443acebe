package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ashureev/orcascore/internal/domain"
	"github.com/go-chi/chi/v5"
)

// AgentStore is the agent persistence used by AgentHandler.
type AgentStore interface {
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	CreateAgent(ctx context.Context, agent *domain.Agent) error
}

// AgentHandler lists and creates agent definitions.
type AgentHandler struct {
	*Handler
	agents AgentStore
}

// NewAgentHandler creates an agent handler.
func NewAgentHandler(base *Handler, agents AgentStore) *AgentHandler {
	return &AgentHandler{Handler: base, agents: agents}
}

// RegisterRoutes registers agent routes.
func (h *AgentHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/agents", h.List)
	r.Post("/api/agents", h.Create)
}

// List returns every agent ordered by id.
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agents.ListAgents(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if agents == nil {
		agents = []domain.Agent{}
	}
	JSON(w, http.StatusOK, agents)
}

type createAgentRequest struct {
	Name        string  `json:"name"`
	ModelName   string  `json:"model_name"`
	AgentPrompt string  `json:"agent_prompt"`
	SystemRole  *string `json:"system_role"`
}

// Create stores a new agent. A second planning agent is rejected with 409.
func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if strings.TrimSpace(req.ModelName) == "" {
		Error(w, http.StatusBadRequest, "model_name is required")
		return
	}
	if req.SystemRole != nil && *req.SystemRole != domain.SystemRolePlanning {
		Error(w, http.StatusBadRequest, "system_role must be 'planning' or omitted")
		return
	}

	agent := &domain.Agent{
		Name:        strings.TrimSpace(req.Name),
		ModelName:   strings.TrimSpace(req.ModelName),
		AgentPrompt: req.AgentPrompt,
		SystemRole:  req.SystemRole,
	}
	if err := h.agents.CreateAgent(r.Context(), agent); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("Agent created", "agent_id", agent.ID, "name", agent.Name)
	JSON(w, http.StatusCreated, agent)
}
