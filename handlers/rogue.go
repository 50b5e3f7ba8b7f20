package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type rogueEnableRequest struct {
	ChannelID string `json:"channel_id"`
}

func (h *Handlers) EnableRogue(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	var req rogueEnableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if err := h.engine.EnableRogue(r.Context(), guildID, req.ChannelID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"rogue_enabled": true})
}

func (h *Handlers) DisableRogue(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	if err := h.engine.DisableRogue(r.Context(), guildID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"rogue_enabled": false})
}

type rogueMessageRequest struct {
	AuthorID string `json:"author_id"`
	Message  string `json:"message"`
}

// RogueMessage is the immediate reply path for direct messages to the bot
// while rogue mode is on.
func (h *Handlers) RogueMessage(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	var req rogueMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	reply, err := h.engine.RogueReply(r.Context(), guildID, req.AuthorID, req.Message)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// RogueActivity records observed channel traffic, resetting the idle clock
// without producing a reply.
func (h *Handlers) RogueActivity(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	h.engine.ObserveActivity(guildID)
	w.WriteHeader(http.StatusNoContent)
}
