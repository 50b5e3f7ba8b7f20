package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storybot/session"
)

func TestWriteEngineErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{session.ErrNoActiveSession, http.StatusNotFound, "no_active_session"},
		{session.ErrStoryNotFound, http.StatusNotFound, "story_not_found"},
		{session.ErrSessionAlreadyActive, http.StatusConflict, "session_already_active"},
		{session.ErrContributionTooLong, http.StatusUnprocessableEntity, "contribution_too_long"},
		{session.ErrConsecutiveTurn, http.StatusUnprocessableEntity, "consecutive_turn_denied"},
		{session.ErrContributionRejected, http.StatusUnprocessableEntity, "contribution_rejected"},
		{session.ErrChannelNotAuthorized, http.StatusForbidden, "channel_not_authorized"},
		{session.ErrDailyLimitReached, http.StatusTooManyRequests, "daily_limit_reached"},
		{session.ErrRogueDisabled, http.StatusConflict, "rogue_disabled"},
		{session.ErrExportUnavailable, http.StatusServiceUnavailable, "export_unavailable"},
		{session.ErrGenerationExhausted, http.StatusServiceUnavailable, "generation_exhausted"},
		{session.ErrPersistenceUnavailable, http.StatusServiceUnavailable, "persistence_unavailable"},
		{errors.New("something else"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			// Wrapped errors must map the same way as the sentinel itself.
			writeEngineError(rec, fmt.Errorf("context: %w", tc.err))

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}
