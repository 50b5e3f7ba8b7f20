package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storybot/models"
)

// fakeGateway is an in-memory Gateway with the same observable behavior as
// the Mongo implementation: hex object IDs, lazily materialized settings,
// atomic usage counters.
type fakeGateway struct {
	mu            sync.Mutex
	stories       map[string]*models.Story
	contributions map[string][]models.Contribution
	settings      map[string]*models.GuildSettings
	usage         map[string]int

	createErr error
	appendErr error
	endErr    error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		stories:       make(map[string]*models.Story),
		contributions: make(map[string][]models.Contribution),
		settings:      make(map[string]*models.GuildSettings),
		usage:         make(map[string]int),
	}
}

// seedSettings installs settings for a guild with random denial switched off,
// so tests opt in to the denial draw explicitly.
func (f *fakeGateway) seedSettings(guildID string, mutate func(*models.GuildSettings)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := models.DefaultGuildSettings(guildID)
	s.DenyRequestPercent = 0
	if mutate != nil {
		mutate(s)
	}
	f.settings[guildID] = s
}

func (f *fakeGateway) story(id string) *models.Story {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stories[id]
}

func (f *fakeGateway) CreateStory(ctx context.Context, story *models.Story) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	story.ID = primitive.NewObjectID()
	copied := *story
	f.stories[story.ID.Hex()] = &copied
	return story.ID.Hex(), nil
}

func (f *fakeGateway) GetStory(ctx context.Context, id string) (*models.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stories[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (f *fakeGateway) AppendStoryText(ctx context.Context, id, finalText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	s, ok := f.stories[id]
	if !ok {
		return errors.New("story not found")
	}
	s.FinalText = finalText
	s.ContributionCount++
	return nil
}

func (f *fakeGateway) EndStory(ctx context.Context, id, finalText string, endedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.endErr != nil {
		return f.endErr
	}
	s, ok := f.stories[id]
	if !ok {
		return errors.New("story not found")
	}
	s.FinalText = finalText
	s.EndedAt = &endedAt
	return nil
}

func (f *fakeGateway) SetStoryDocURL(ctx context.Context, id, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stories[id]
	if !ok {
		return errors.New("story not found")
	}
	s.DocURL = url
	return nil
}

func (f *fakeGateway) GetActiveStories(ctx context.Context) ([]models.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Story
	for _, s := range f.stories {
		if s.EndedAt == nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeGateway) GetRecentStories(ctx context.Context, channelID string, limit int) ([]models.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Story
	for _, s := range f.stories {
		if s.ChannelID == channelID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeGateway) GetEndedStories(ctx context.Context, guildID string) ([]models.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Story
	for _, s := range f.stories {
		if s.GuildID == guildID && s.EndedAt != nil {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.Before(*out[j].EndedAt) })
	return out, nil
}

func (f *fakeGateway) DeleteStoryCascade(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.stories, id)
	delete(f.contributions, id)
	return nil
}

func (f *fakeGateway) AddContribution(ctx context.Context, contribution *models.Contribution) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	contribution.ID = primitive.NewObjectID()
	f.contributions[contribution.StoryID] = append(f.contributions[contribution.StoryID], *contribution)
	return contribution.ID.Hex(), nil
}

func (f *fakeGateway) GetContributions(ctx context.Context, storyID string) ([]models.Contribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Contribution, len(f.contributions[storyID]))
	copy(out, f.contributions[storyID])
	return out, nil
}

func (f *fakeGateway) GetGuildSettings(ctx context.Context, guildID string) (*models.GuildSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[guildID]
	if !ok {
		s = models.DefaultGuildSettings(guildID)
		f.settings[guildID] = s
	}
	copied := *s
	return &copied, nil
}

func (f *fakeGateway) MergeGuildSettings(ctx context.Context, guildID string, patch *models.SettingsPatch) (*models.GuildSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[guildID]
	if !ok {
		s = models.DefaultGuildSettings(guildID)
		f.settings[guildID] = s
	}
	patch.Apply(s)
	s.UpdatedAt = time.Now()
	copied := *s
	return &copied, nil
}

func (f *fakeGateway) GetRogueGuilds(ctx context.Context) ([]models.GuildSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.GuildSettings
	for _, s := range f.settings {
		if s.RogueEnabled {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeGateway) IncrementDailyUsage(ctx context.Context, guildID, feature, day string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := models.UsageKey(guildID, feature, day)
	f.usage[key]++
	return f.usage[key], nil
}

// fakeGenerator returns canned text and records calls. validateOK defaults to
// true in newTestEngine.
type fakeGenerator struct {
	mu sync.Mutex

	validateOK  bool
	validateErr error
	recap       string
	recapErr    error
	twist       string
	twistErr    error
	opening     string
	filler      string
	fillerErr   error
	reply       string
	replyErr    error

	recapCalls    int
	fillerCalls   int
	openingCalls  int
	clearedGuilds []string
}

func (g *fakeGenerator) GenerateRecap(ctx context.Context, storyText string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recapCalls++
	return g.recap, g.recapErr
}

func (g *fakeGenerator) GeneratePlotTwist(ctx context.Context, storyText, intensity, promptHint string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.twist, g.twistErr
}

func (g *fakeGenerator) ValidateContribution(ctx context.Context, content, storyContext string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.validateOK, g.validateErr
}

func (g *fakeGenerator) GenerateRogueOpening(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.openingCalls++
	return g.opening, nil
}

func (g *fakeGenerator) GenerateRogueFiller(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fillerCalls++
	return g.filler, g.fillerErr
}

func (g *fakeGenerator) GenerateRogueResponse(ctx context.Context, message, guildID, authorID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reply, g.replyErr
}

func (g *fakeGenerator) ClearRogueTranscript(guildID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clearedGuilds = append(g.clearedGuilds, guildID)
}

func (g *fakeGenerator) cleared() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.clearedGuilds))
	copy(out, g.clearedGuilds)
	return out
}

type fakeExporter struct {
	mu        sync.Mutex
	available bool
	url       string
	err       error
	calls     int
}

func (e *fakeExporter) Available() bool { return e.available }

func (e *fakeExporter) ExportStory(ctx context.Context, story *models.Story, contributions []models.Contribution) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.url, e.err
}

func (e *fakeExporter) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// chanNotifier forwards sends to a buffered channel for tests to wait on.
type chanNotifier struct {
	ch chan string
}

func newChanNotifier() *chanNotifier {
	return &chanNotifier{ch: make(chan string, 16)}
}

func (n *chanNotifier) Send(ctx context.Context, channelID, text string) error {
	select {
	case n.ch <- text:
	default:
	}
	return nil
}
