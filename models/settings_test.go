package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGuildSettings(t *testing.T) {
	s := DefaultGuildSettings("g1")

	assert.Equal(t, "g1", s.GuildID)
	assert.Equal(t, 300, s.MaxContributionLength)
	assert.Equal(t, 0.15, s.DenyRequestPercent)
	assert.Equal(t, 100, s.MaxContributionsPerStory)
	assert.Equal(t, 25, s.MaxStoredStories)
	assert.Equal(t, 5, s.DailyTwistLimit)
	assert.Equal(t, 10, s.DailyRecapLimit)
	assert.Equal(t, 90, s.RetentionDays)
	assert.False(t, s.Premium)
	assert.False(t, s.RogueEnabled)
	assert.Empty(t, s.DesignatedChannelID)
}

func TestSettingsPatchApplyMergesOnlySetFields(t *testing.T) {
	s := DefaultGuildSettings("g1")

	length := 150
	deny := 0.0
	premium := true
	patch := SettingsPatch{
		MaxContributionLength: &length,
		DenyRequestPercent:    &deny,
		Premium:               &premium,
	}
	patch.Apply(s)

	assert.Equal(t, 150, s.MaxContributionLength)
	assert.Equal(t, 0.0, s.DenyRequestPercent)
	assert.True(t, s.Premium)

	// Fields absent from the patch keep their prior values.
	assert.Equal(t, 25, s.MaxStoredStories)
	assert.Equal(t, 90, s.RetentionDays)
	assert.Equal(t, 5, s.DailyTwistLimit)
}

func TestSettingsPatchZeroValueIsNotNil(t *testing.T) {
	s := DefaultGuildSettings("g1")
	empty := ""
	patch := SettingsPatch{DesignatedChannelID: &empty}

	s.DesignatedChannelID = "story-channel"
	patch.Apply(s)

	// An explicit empty string clears the restriction, unlike a nil field.
	assert.Empty(t, s.DesignatedChannelID)
}

func TestSettingsPatchDecodesPartialJSON(t *testing.T) {
	var patch SettingsPatch
	require.NoError(t, json.Unmarshal([]byte(`{"max_contribution_length":120,"rogue_enabled":true}`), &patch))

	require.NotNil(t, patch.MaxContributionLength)
	assert.Equal(t, 120, *patch.MaxContributionLength)
	require.NotNil(t, patch.RogueEnabled)
	assert.True(t, *patch.RogueEnabled)
	assert.Nil(t, patch.Premium)
	assert.Nil(t, patch.DesignatedChannelID)
}

func TestUsageKey(t *testing.T) {
	assert.Equal(t, "g1:recap:2026-08-31", UsageKey("g1", "recap", "2026-08-31"))
}
