package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"storybot/session"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[HTTP] Encoding response failed: %v", err)
	}
}

// writeEngineError maps each rejection kind to a distinct machine-readable
// code so the client can render an actionable message instead of a generic
// failure.
func writeEngineError(w http.ResponseWriter, err error) {
	var status int
	var code string
	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		status, code = http.StatusNotFound, "no_active_session"
	case errors.Is(err, session.ErrStoryNotFound):
		status, code = http.StatusNotFound, "story_not_found"
	case errors.Is(err, session.ErrSessionAlreadyActive):
		status, code = http.StatusConflict, "session_already_active"
	case errors.Is(err, session.ErrContributionTooLong):
		status, code = http.StatusUnprocessableEntity, "contribution_too_long"
	case errors.Is(err, session.ErrConsecutiveTurn):
		status, code = http.StatusUnprocessableEntity, "consecutive_turn_denied"
	case errors.Is(err, session.ErrContributionRejected):
		status, code = http.StatusUnprocessableEntity, "contribution_rejected"
	case errors.Is(err, session.ErrChannelNotAuthorized):
		status, code = http.StatusForbidden, "channel_not_authorized"
	case errors.Is(err, session.ErrDailyLimitReached):
		status, code = http.StatusTooManyRequests, "daily_limit_reached"
	case errors.Is(err, session.ErrRogueDisabled):
		status, code = http.StatusConflict, "rogue_disabled"
	case errors.Is(err, session.ErrExportUnavailable):
		status, code = http.StatusServiceUnavailable, "export_unavailable"
	case errors.Is(err, session.ErrGenerationExhausted):
		status, code = http.StatusServiceUnavailable, "generation_exhausted"
	case errors.Is(err, session.ErrPersistenceUnavailable):
		status, code = http.StatusServiceUnavailable, "persistence_unavailable"
	default:
		status, code = http.StatusInternalServerError, "internal_error"
	}
	writeJSON(w, status, errorResponse{Error: code, Message: err.Error()})
}
