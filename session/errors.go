package session

import "errors"

// Rejection kinds surfaced to the command surface. Precondition failures are
// normal flow control and are never retried; the two infrastructure kinds
// wrap the underlying cause so callers can still log it.
var (
	ErrNoActiveSession        = errors.New("no active story in this channel")
	ErrSessionAlreadyActive   = errors.New("a story is already active in this channel")
	ErrContributionTooLong    = errors.New("contribution is too long")
	ErrConsecutiveTurn        = errors.New("same author cannot contribute twice in a row")
	ErrRandomlyDenied         = errors.New("request denied on a whim")
	ErrContributionRejected   = errors.New("contribution rejected by validator")
	ErrChannelNotAuthorized   = errors.New("commands are restricted to the designated channel")
	ErrDailyLimitReached      = errors.New("daily limit for this command reached")
	ErrStoryNotFound          = errors.New("story not found")
	ErrRogueDisabled          = errors.New("rogue mode is not enabled for this guild")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrGenerationExhausted    = errors.New("generation provider failed after retries")
	ErrExportUnavailable      = errors.New("document export is not available")
)

// DenialLines are the in-character excuses paired with ErrRandomlyDenied.
// The denial is flavor, not an error, so the surface presents one of these
// instead of a failure message.
var DenialLines = []string{
	"Yeah... I'm too lazy to execute that command rn :expressionless:",
	"I don't feel like doing that right now :neutral_face:",
	"I'm not in the mood to run your command :yawning_face:",
	"I think I'll disobey that command :wink:",
}
