package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ashureev/orcascore/internal/llm"
	"github.com/ashureev/orcascore/internal/provider"
	"github.com/go-chi/chi/v5"
)

// ChatGateway is the provider surface exposed over HTTP.
type ChatGateway interface {
	SendChat(ctx context.Context, req llm.ChatRequest) (string, error)
	TestConnection(ctx context.Context) error
	AvailableModels(ctx context.Context) ([]provider.ModelInfo, error)
	ResolveModelID(ctx context.Context, friendly string) (string, error)
}

// ChatHandler proxies chat and model requests to the configured provider.
type ChatHandler struct {
	*Handler
	gateway ChatGateway
}

// NewChatHandler creates a chat handler.
func NewChatHandler(base *Handler, gateway ChatGateway) *ChatHandler {
	return &ChatHandler{Handler: base, gateway: gateway}
}

// RegisterRoutes registers chat and model routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chat/messages", h.SendMessage)
	r.Post("/api/chat/test-connection", h.TestConnection)
	r.Get("/api/models", h.Models)
	r.Get("/api/models/resolve", h.Resolve)
}

// SendMessage forwards a chat request and returns the provider's JSON body
// unchanged.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req llm.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		Error(w, http.StatusBadRequest, "model is required")
		return
	}
	if req.MaxTokens <= 0 {
		Error(w, http.StatusBadRequest, "max_tokens must be > 0")
		return
	}

	body, err := h.gateway.SendChat(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if !json.Valid([]byte(body)) {
		Error(w, http.StatusBadGateway, "provider returned a non-JSON response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// TestConnection checks the configured credentials.
func (h *ChatHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.gateway.TestConnection(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "Connection successful"})
}

// Models lists the provider's models.
func (h *ChatHandler) Models(w http.ResponseWriter, r *http.Request) {
	models, err := h.gateway.AvailableModels(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if models == nil {
		models = []provider.ModelInfo{}
	}
	JSON(w, http.StatusOK, models)
}

// Resolve maps ?name= to a full model id.
func (h *ChatHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		Error(w, http.StatusBadRequest, "name is required")
		return
	}
	id, err := h.gateway.ResolveModelID(r.Context(), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"id": id})
}
