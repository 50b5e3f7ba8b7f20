package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storybot/models"
)

// GetGuildSettings returns a guild's settings, lazily materializing the
// defaults on first access so every guild always has a record.
func (m *Mongo) GetGuildSettings(ctx context.Context, guildID string) (*models.GuildSettings, error) {
	defaults := models.DefaultGuildSettings(guildID)

	update := bson.M{"$setOnInsert": bson.M{
		"max_contribution_length":     defaults.MaxContributionLength,
		"min_seconds_between_turns":   defaults.MinSecondsBetweenTurns,
		"designated_channel_id":       defaults.DesignatedChannelID,
		"rogue_enabled":               defaults.RogueEnabled,
		"rogue_channel_id":            defaults.RogueChannelID,
		"deny_request_percent":        defaults.DenyRequestPercent,
		"premium":                     defaults.Premium,
		"max_contributions_per_story": defaults.MaxContributionsPerStory,
		"max_stored_stories":          defaults.MaxStoredStories,
		"daily_twist_limit":           defaults.DailyTwistLimit,
		"daily_recap_limit":           defaults.DailyRecapLimit,
		"retention_days":              defaults.RetentionDays,
		"updated_at":                  time.Now(),
	}}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var settings models.GuildSettings
	err := m.Collection(settingsCollection).
		FindOneAndUpdate(ctx, bson.M{"_id": guildID}, update, opts).
		Decode(&settings)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// MergeGuildSettings applies a partial patch: only the fields present in the
// patch are written, everything else keeps its prior value.
func (m *Mongo) MergeGuildSettings(ctx context.Context, guildID string, patch *models.SettingsPatch) (*models.GuildSettings, error) {
	// Materialize the record first so a patch to an unseen guild merges into
	// defaults rather than into a sparse document.
	if _, err := m.GetGuildSettings(ctx, guildID); err != nil {
		return nil, err
	}

	set := bson.M{"updated_at": time.Now()}
	if patch.MaxContributionLength != nil {
		set["max_contribution_length"] = *patch.MaxContributionLength
	}
	if patch.MinSecondsBetweenTurns != nil {
		set["min_seconds_between_turns"] = *patch.MinSecondsBetweenTurns
	}
	if patch.DesignatedChannelID != nil {
		set["designated_channel_id"] = *patch.DesignatedChannelID
	}
	if patch.RogueEnabled != nil {
		set["rogue_enabled"] = *patch.RogueEnabled
	}
	if patch.RogueChannelID != nil {
		set["rogue_channel_id"] = *patch.RogueChannelID
	}
	if patch.DenyRequestPercent != nil {
		set["deny_request_percent"] = *patch.DenyRequestPercent
	}
	if patch.Premium != nil {
		set["premium"] = *patch.Premium
	}
	if patch.MaxContributionsPerStory != nil {
		set["max_contributions_per_story"] = *patch.MaxContributionsPerStory
	}
	if patch.MaxStoredStories != nil {
		set["max_stored_stories"] = *patch.MaxStoredStories
	}
	if patch.DailyTwistLimit != nil {
		set["daily_twist_limit"] = *patch.DailyTwistLimit
	}
	if patch.DailyRecapLimit != nil {
		set["daily_recap_limit"] = *patch.DailyRecapLimit
	}
	if patch.RetentionDays != nil {
		set["retention_days"] = *patch.RetentionDays
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var settings models.GuildSettings
	err := m.Collection(settingsCollection).
		FindOneAndUpdate(ctx, bson.M{"_id": guildID}, bson.M{"$set": set}, opts).
		Decode(&settings)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// GetRogueGuilds returns the settings of every guild with rogue mode enabled,
// used to re-arm the background loops after a restart.
func (m *Mongo) GetRogueGuilds(ctx context.Context) ([]models.GuildSettings, error) {
	cursor, err := m.Collection(settingsCollection).Find(ctx, bson.M{"rogue_enabled": true})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var settings []models.GuildSettings
	if err := cursor.All(ctx, &settings); err != nil {
		return nil, err
	}
	return settings, nil
}
