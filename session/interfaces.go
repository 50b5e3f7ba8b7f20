package session

import (
	"context"
	"time"

	"storybot/models"
)

// Gateway is the persistence contract the engine depends on. *db.Mongo is the
// production implementation; tests plug in an in-memory fake.
type Gateway interface {
	CreateStory(ctx context.Context, story *models.Story) (string, error)
	GetStory(ctx context.Context, id string) (*models.Story, error)
	AppendStoryText(ctx context.Context, id, finalText string) error
	EndStory(ctx context.Context, id, finalText string, endedAt time.Time) error
	SetStoryDocURL(ctx context.Context, id, url string) error
	GetActiveStories(ctx context.Context) ([]models.Story, error)
	GetRecentStories(ctx context.Context, channelID string, limit int) ([]models.Story, error)
	GetEndedStories(ctx context.Context, guildID string) ([]models.Story, error)
	DeleteStoryCascade(ctx context.Context, id string) error
	AddContribution(ctx context.Context, contribution *models.Contribution) (string, error)
	GetContributions(ctx context.Context, storyID string) ([]models.Contribution, error)
	GetGuildSettings(ctx context.Context, guildID string) (*models.GuildSettings, error)
	MergeGuildSettings(ctx context.Context, guildID string, patch *models.SettingsPatch) (*models.GuildSettings, error)
	GetRogueGuilds(ctx context.Context) ([]models.GuildSettings, error)
	IncrementDailyUsage(ctx context.Context, guildID, feature, day string) (int, error)
}

// Generator is the narrative-generation contract. Every call is expected to
// apply its own bounded retry; when retries are exhausted the engine wraps
// the failure as ErrGenerationExhausted.
type Generator interface {
	GenerateRecap(ctx context.Context, storyText string) (string, error)
	GeneratePlotTwist(ctx context.Context, storyText, intensity, promptHint string) (string, error)
	ValidateContribution(ctx context.Context, content, storyContext string) (bool, error)
	GenerateRogueOpening(ctx context.Context) (string, error)
	GenerateRogueFiller(ctx context.Context) (string, error)
	GenerateRogueResponse(ctx context.Context, message, guildID, authorID string) (string, error)
	ClearRogueTranscript(guildID string)
}

// Exporter renders a finished story into an external document. Each call
// creates a new document, so the engine enforces idempotence around it.
type Exporter interface {
	Available() bool
	ExportStory(ctx context.Context, story *models.Story, contributions []models.Contribution) (string, error)
}

// Notifier delivers unsolicited engine output (rogue banter) to a channel.
// The chat-platform adapter implements it; tests record the sends.
type Notifier interface {
	Send(ctx context.Context, channelID, text string) error
}
