package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storybot/models"
)

func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	settings, err := h.engine.Settings(r.Context(), guildID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// PatchSettings merges a partial settings update. The caller is expected to
// have performed its admin check before reaching this route.
func (h *Handlers) PatchSettings(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	var patch models.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	settings, err := h.engine.UpdateSettings(r.Context(), guildID, &patch)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type designateRequest struct {
	ChannelID string `json:"channel_id"`
}

func (h *Handlers) SetDesignatedChannel(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	var req designateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	settings, err := h.engine.SetDesignatedChannel(r.Context(), guildID, req.ChannelID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handlers) ClearDesignatedChannel(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	settings, err := h.engine.ClearDesignatedChannel(r.Context(), guildID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
