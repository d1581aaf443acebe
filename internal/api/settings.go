package api

import (
	"net/http"

	"github.com/ashureev/orcascore/internal/store"
	"github.com/go-chi/chi/v5"
)

// SettingsHandler exposes the key/value settings store.
type SettingsHandler struct {
	*Handler
	settings store.SettingsStore
}

// NewSettingsHandler creates a settings handler.
func NewSettingsHandler(base *Handler, settings store.SettingsStore) *SettingsHandler {
	return &SettingsHandler{Handler: base, settings: settings}
}

// RegisterRoutes registers settings routes.
func (h *SettingsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/settings/{key}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Put)
		r.Delete("/", h.Delete)
	})
}

type settingBody struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Get returns a setting or 404.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := h.settings.GetSetting(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, settingBody{Key: key, Value: value})
}

// Put creates or replaces a setting.
func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var body settingBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.settings.SetSetting(r.Context(), key, body.Value); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, settingBody{Key: key, Value: body.Value})
}

// Delete removes a setting. Deleting a missing key succeeds.
func (h *SettingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.settings.DeleteSetting(r.Context(), chi.URLParam(r, "key")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
