package models

import "time"

// GuildSettings is the per-guild configuration record. Every guild has one,
// lazily materialized with defaults on first access, and it is never deleted.
type GuildSettings struct {
	GuildID                  string    `bson:"_id" json:"guild_id"`
	MaxContributionLength    int       `bson:"max_contribution_length" json:"max_contribution_length"`
	MinSecondsBetweenTurns   int       `bson:"min_seconds_between_turns" json:"min_seconds_between_turns"`
	DesignatedChannelID      string    `bson:"designated_channel_id" json:"designated_channel_id"`
	RogueEnabled             bool      `bson:"rogue_enabled" json:"rogue_enabled"`
	RogueChannelID           string    `bson:"rogue_channel_id" json:"rogue_channel_id"`
	DenyRequestPercent       float64   `bson:"deny_request_percent" json:"deny_request_percent"`
	Premium                  bool      `bson:"premium" json:"premium"`
	MaxContributionsPerStory int       `bson:"max_contributions_per_story" json:"max_contributions_per_story"`
	MaxStoredStories         int       `bson:"max_stored_stories" json:"max_stored_stories"`
	DailyTwistLimit          int       `bson:"daily_twist_limit" json:"daily_twist_limit"`
	DailyRecapLimit          int       `bson:"daily_recap_limit" json:"daily_recap_limit"`
	RetentionDays            int       `bson:"retention_days" json:"retention_days"`
	UpdatedAt                time.Time `bson:"updated_at" json:"updated_at"`
}

// DefaultGuildSettings returns the settings a guild starts with.
func DefaultGuildSettings(guildID string) *GuildSettings {
	return &GuildSettings{
		GuildID:                  guildID,
		MaxContributionLength:    300,
		MinSecondsBetweenTurns:   60,
		DenyRequestPercent:       0.15,
		MaxContributionsPerStory: 100,
		MaxStoredStories:         25,
		DailyTwistLimit:          5,
		DailyRecapLimit:          10,
		RetentionDays:            90,
	}
}

// SettingsPatch is a partial update of GuildSettings. Nil fields keep the
// prior value, so concurrent admins never clobber each other's unrelated
// changes.
type SettingsPatch struct {
	MaxContributionLength    *int     `json:"max_contribution_length,omitempty"`
	MinSecondsBetweenTurns   *int     `json:"min_seconds_between_turns,omitempty"`
	DesignatedChannelID      *string  `json:"designated_channel_id,omitempty"`
	RogueEnabled             *bool    `json:"rogue_enabled,omitempty"`
	RogueChannelID           *string  `json:"rogue_channel_id,omitempty"`
	DenyRequestPercent       *float64 `json:"deny_request_percent,omitempty"`
	Premium                  *bool    `json:"premium,omitempty"`
	MaxContributionsPerStory *int     `json:"max_contributions_per_story,omitempty"`
	MaxStoredStories         *int     `json:"max_stored_stories,omitempty"`
	DailyTwistLimit          *int     `json:"daily_twist_limit,omitempty"`
	DailyRecapLimit          *int     `json:"daily_recap_limit,omitempty"`
	RetentionDays            *int     `json:"retention_days,omitempty"`
}

// Apply merges the patch into s, field by field.
func (p *SettingsPatch) Apply(s *GuildSettings) {
	if p.MaxContributionLength != nil {
		s.MaxContributionLength = *p.MaxContributionLength
	}
	if p.MinSecondsBetweenTurns != nil {
		s.MinSecondsBetweenTurns = *p.MinSecondsBetweenTurns
	}
	if p.DesignatedChannelID != nil {
		s.DesignatedChannelID = *p.DesignatedChannelID
	}
	if p.RogueEnabled != nil {
		s.RogueEnabled = *p.RogueEnabled
	}
	if p.RogueChannelID != nil {
		s.RogueChannelID = *p.RogueChannelID
	}
	if p.DenyRequestPercent != nil {
		s.DenyRequestPercent = *p.DenyRequestPercent
	}
	if p.Premium != nil {
		s.Premium = *p.Premium
	}
	if p.MaxContributionsPerStory != nil {
		s.MaxContributionsPerStory = *p.MaxContributionsPerStory
	}
	if p.MaxStoredStories != nil {
		s.MaxStoredStories = *p.MaxStoredStories
	}
	if p.DailyTwistLimit != nil {
		s.DailyTwistLimit = *p.DailyTwistLimit
	}
	if p.RetentionDays != nil {
		s.RetentionDays = *p.RetentionDays
	}
	if p.DailyRecapLimit != nil {
		s.DailyRecapLimit = *p.DailyRecapLimit
	}
}
