package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Story represents one collaborative narrative session tied to a channel.
// FinalText is seeded with the opening text and only ever grows by
// newline-joined appends. EndedAt stays nil while the story is active.
type Story struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	ChannelID         string             `bson:"channel_id"`
	GuildID           string             `bson:"guild_id"`
	Title             string             `bson:"title"`
	OpeningText       string             `bson:"opening_text"`
	FinalText         string             `bson:"final_text"`
	StartedAt         time.Time          `bson:"started_at"`
	EndedAt           *time.Time         `bson:"ended_at"`
	DocURL            string             `bson:"doc_url"`
	ContributionCount int                `bson:"contribution_count"`
}

// Active reports whether the story has not been ended yet.
func (s *Story) Active() bool {
	return s.EndedAt == nil
}

// Contribution is one accepted turn. Username and DisplayName are captured at
// submission time; the historical record keeps them even if the author renames
// later. Contributions are never updated, only deleted on story purge.
type Contribution struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	StoryID     string             `bson:"story_id"`
	UserID      string             `bson:"user_id"`
	Username    string             `bson:"username"`
	DisplayName string             `bson:"display_name"`
	Content     string             `bson:"content"`
	Timestamp   time.Time          `bson:"timestamp"`
}

// UsageCounter is a date-bucketed invocation counter. The ID is
// "guild:feature:YYYY-MM-DD" and Count is incremented atomically.
type UsageCounter struct {
	ID        string    `bson:"_id"`
	GuildID   string    `bson:"guild_id"`
	Feature   string    `bson:"feature"`
	Day       string    `bson:"day"`
	Count     int       `bson:"count"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// UsageKey builds the counter document ID for a guild, feature and day.
func UsageKey(guildID, feature, day string) string {
	return guildID + ":" + feature + ":" + day
}
