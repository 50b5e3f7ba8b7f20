package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"storybot/session"
)

// Handlers translates HTTP requests into session-engine calls. Identity
// fields (author, admin flag) arrive from the authenticating front end; the
// chat-platform adapter itself is out of scope here.
type Handlers struct {
	engine *session.Engine
}

func NewHandlers(engine *session.Engine) *Handlers {
	return &Handlers{engine: engine}
}

type identity struct {
	GuildID     string `json:"guild_id"`
	ChannelID   string `json:"channel_id"`
	AuthorID    string `json:"author_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	IsAdmin     bool   `json:"is_admin"`
}

type startRequest struct {
	identity
	OpeningText string `json:"opening_text"`
}

func (h *Handlers) StartStory(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	handle, err := h.engine.Start(r.Context(), req.ChannelID, req.GuildID, req.AuthorID, req.DisplayName, req.OpeningText, req.IsAdmin)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"story_id":   handle.ID,
		"title":      handle.Title,
		"started_at": handle.StartedAt,
	})
}

type addRequest struct {
	identity
	Content string `json:"content"`
}

func (h *Handlers) AddContribution(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	result, err := h.engine.AcceptContribution(r.Context(), req.ChannelID, req.AuthorID, req.Username, req.DisplayName, req.Content, req.IsAdmin)
	if errors.Is(err, session.ErrRandomlyDenied) {
		// The whimsical denial is flavor, not a failure.
		writeJSON(w, http.StatusOK, map[string]any{
			"denied": true,
			"reply":  h.engine.DenialLine(),
		})
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}

	payload := map[string]any{
		"accepted":   true,
		"author":     result.Contribution.DisplayName,
		"content":    result.Contribution.Content,
		"auto_ended": result.AutoEnded,
	}
	if result.AutoEnded {
		payload["final_text"] = result.FinalText
		payload["recap"] = result.Recap
	}
	writeJSON(w, http.StatusOK, payload)
}

type channelRequest struct {
	identity
}

func (h *Handlers) Recap(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	recap, err := h.engine.GenerateRecap(r.Context(), req.ChannelID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"recap": recap})
}

type twistRequest struct {
	identity
	Intensity  string `json:"intensity"`
	PromptHint string `json:"prompt_hint"`
}

func (h *Handlers) PlotTwist(w http.ResponseWriter, r *http.Request) {
	var req twistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	twist, err := h.engine.GenerateTwist(r.Context(), req.ChannelID, req.Intensity, req.PromptHint)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"twist": twist})
}

func (h *Handlers) EndStory(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	finalText, recap, err := h.engine.End(r.Context(), req.ChannelID, req.IsAdmin)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"final_text": finalText,
		"recap":      recap,
	})
}

type exportRequest struct {
	identity
	StoryID string `json:"story_id"`
}

func (h *Handlers) ExportStory(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	var result *session.ExportResult
	var err error
	if req.StoryID != "" {
		result, err = h.engine.Export(r.Context(), req.StoryID)
	} else {
		result, err = h.engine.ExportLatest(r.Context(), req.ChannelID)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doc_url":          result.URL,
		"already_exported": result.AlreadyExported,
	})
}
