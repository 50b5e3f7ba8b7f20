package session

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"
	"unicode/utf8"

	"storybot/models"
)

// SystemAuthorID attributes twists and other engine-generated contributions.
const SystemAuthorID = "NARRATOR"

// contextWindow bounds how much trailing story text is sent to the
// generation provider as context.
const contextWindow = 4000

// activeStory is the in-memory state of one running session. The engine's
// map is the only place these live; the durable record is the source of
// truth across restarts.
type activeStory struct {
	storyID           string
	channelID         string
	guildID           string
	title             string
	openingText       string
	currentText       string
	contributionCount int
	lastAuthorID      string
	startedAt         time.Time
}

// StoryHandle is the caller-facing view of a started session.
type StoryHandle struct {
	ID        string
	ChannelID string
	GuildID   string
	Title     string
	StartedAt time.Time
}

// AcceptResult reports an accepted contribution, plus the forced-close
// payload when the contribution reached the guild's free-tier cap.
type AcceptResult struct {
	Contribution models.Contribution
	AutoEnded    bool
	FinalText    string
	Recap        string
}

// ExportResult carries the document reference. AlreadyExported marks the
// idempotent short-circuit, which is informational rather than an error.
type ExportResult struct {
	URL             string
	AlreadyExported bool
}

// Engine owns the active-story and rogue-session maps and every lifecycle
// rule around them. Collaborators are injected; nothing here is global.
type Engine struct {
	gw     Gateway
	gen    Generator
	exp    Exporter
	notify Notifier

	mu          sync.Mutex
	active      map[string]*activeStory  // channel id -> session
	rogue       map[string]*rogueSession // guild id -> loop
	exportLocks map[string]*sync.Mutex   // story id -> export guard

	rngMu sync.Mutex
	rng   *rand.Rand
	now   func() time.Time

	rogueDelayMin time.Duration
	rogueDelayMax time.Duration
	rogueQuiet    time.Duration
	thinkingPause time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand injects the random source used for denial draws and rogue timing.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRogueTiming overrides the rogue loop's delay window and quiet period.
func WithRogueTiming(delayMin, delayMax, quiet time.Duration) Option {
	return func(e *Engine) {
		e.rogueDelayMin = delayMin
		e.rogueDelayMax = delayMax
		e.rogueQuiet = quiet
	}
}

// WithThinkingPause overrides the pause taken before a rogue reply.
func WithThinkingPause(d time.Duration) Option {
	return func(e *Engine) { e.thinkingPause = d }
}

// New builds an Engine. notify may be nil when no outbound channel exists
// (rogue filler is then dropped with a log line).
func New(gw Gateway, gen Generator, exp Exporter, notify Notifier, opts ...Option) *Engine {
	e := &Engine{
		gw:            gw,
		gen:           gen,
		exp:           exp,
		notify:        notify,
		active:        make(map[string]*activeStory),
		rogue:         make(map[string]*rogueSession),
		exportLocks:   make(map[string]*sync.Mutex),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		now:           time.Now,
		rogueDelayMin: 60 * time.Second,
		rogueDelayMax: 120 * time.Second,
		rogueQuiet:    10 * time.Minute,
		thinkingPause: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notify == nil {
		e.notify = noopNotifier{}
	}
	return e
}

type noopNotifier struct{}

func (noopNotifier) Send(ctx context.Context, channelID, text string) error {
	log.Printf("[NOTIFY] Dropping message for channel %s (no notifier configured)", channelID)
	return nil
}

// allowedChannel is the channel-authorization predicate: admins and guilds
// without a designated channel pass everywhere.
func allowedChannel(settings *models.GuildSettings, channelID string, isAdmin bool) bool {
	if isAdmin || settings.DesignatedChannelID == "" {
		return true
	}
	return channelID == settings.DesignatedChannelID
}

// Start begins a new story in a channel. The durable record is created
// before the in-memory entry so a persistence failure leaves no orphaned
// session invisible to the store.
func (e *Engine) Start(ctx context.Context, channelID, guildID, authorID, displayName, openingText string, isAdmin bool) (*StoryHandle, error) {
	settings, err := e.gw.GetGuildSettings(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	if !allowedChannel(settings, channelID, isAdmin) {
		return nil, ErrChannelNotAuthorized
	}

	// Reserve the channel slot up front so concurrent starts cannot both
	// persist a story record.
	e.mu.Lock()
	if _, ok := e.active[channelID]; ok {
		e.mu.Unlock()
		return nil, ErrSessionAlreadyActive
	}
	reservation := &activeStory{channelID: channelID, guildID: guildID}
	e.active[channelID] = reservation
	e.mu.Unlock()

	now := e.now()
	story := &models.Story{
		ChannelID:         channelID,
		GuildID:           guildID,
		Title:             "Story-" + now.Format("20060102-1504"),
		OpeningText:       openingText,
		FinalText:         openingText,
		StartedAt:         now,
		ContributionCount: 1, // the opening counts as the first turn
	}

	storyID, err := e.gw.CreateStory(ctx, story)
	if err != nil {
		e.mu.Lock()
		delete(e.active, channelID)
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}

	e.mu.Lock()
	reservation.storyID = storyID
	reservation.title = story.Title
	reservation.openingText = openingText
	reservation.currentText = openingText
	reservation.contributionCount = 1
	reservation.lastAuthorID = authorID
	reservation.startedAt = now
	e.mu.Unlock()

	log.Printf("[SESSION] Started story %s in channel %s (guild %s) by %s", storyID, channelID, guildID, displayName)

	return &StoryHandle{
		ID:        storyID,
		ChannelID: channelID,
		GuildID:   guildID,
		Title:     story.Title,
		StartedAt: now,
	}, nil
}

// snapshot copies the fields of a channel's active session, or fails with
// ErrNoActiveSession. A reservation mid-start counts as no session yet.
func (e *Engine) snapshot(channelID string) (activeStory, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.active[channelID]
	if !ok || entry.storyID == "" {
		return activeStory{}, ErrNoActiveSession
	}
	return *entry, nil
}

// AcceptContribution runs the accept preconditions in order (first failure
// wins), persists the turn, then mutates the in-memory session. When the
// guild's free-tier contribution cap is reached the story is closed
// gracefully after the append, and the result carries the close payload.
func (e *Engine) AcceptContribution(ctx context.Context, channelID, authorID, username, displayName, content string, isAdmin bool) (*AcceptResult, error) {
	snap, err := e.snapshot(channelID)
	if err != nil {
		return nil, err
	}

	// Guild settings are resolved per operation; the engine keeps no
	// settings cache that could go stale between admin updates.
	settings, err := e.gw.GetGuildSettings(ctx, snap.guildID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	if !allowedChannel(settings, channelID, isAdmin) {
		return nil, ErrChannelNotAuthorized
	}

	if utf8.RuneCountInString(content) > settings.MaxContributionLength {
		return nil, ErrContributionTooLong
	}

	if settings.DenyRequestPercent > 0 && e.rand01() < settings.DenyRequestPercent {
		return nil, ErrRandomlyDenied
	}

	if snap.lastAuthorID == authorID && !isAdmin {
		return nil, ErrConsecutiveTurn
	}

	ok, err := e.gen.ValidateContribution(ctx, content, tail(snap.currentText, contextWindow))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationExhausted, err)
	}
	if !ok {
		return nil, ErrContributionRejected
	}

	contribution := models.Contribution{
		StoryID:     snap.storyID,
		UserID:      authorID,
		Username:    username,
		DisplayName: displayName,
		Content:     content,
		Timestamp:   e.now(),
	}

	updatedText := snap.currentText + "\n" + content
	if err := e.persistAppend(ctx, snap.storyID, &contribution, updatedText); err != nil {
		return nil, err
	}

	e.mu.Lock()
	count := 0
	if entry, ok := e.active[channelID]; ok {
		entry.currentText = updatedText
		entry.contributionCount++
		entry.lastAuthorID = authorID
		count = entry.contributionCount
	}
	e.mu.Unlock()

	result := &AcceptResult{Contribution: contribution}

	// Append, then check, then auto-end: the contribution that reaches the
	// cap is kept and the story closes gracefully behind it.
	maxTurns := settings.MaxContributionsPerStory
	if maxTurns > 0 && !settings.Premium && count >= maxTurns {
		finalText, recap, err := e.End(ctx, channelID, isAdmin)
		if err != nil {
			log.Printf("[SESSION] Auto-end after reaching cap failed for channel %s: %v", channelID, err)
			return result, nil
		}
		result.AutoEnded = true
		result.FinalText = finalText
		result.Recap = recap
	}

	return result, nil
}

// persistAppend writes the contribution and the grown story text. The story
// update carries both the text and the counter bump in one durable write.
func (e *Engine) persistAppend(ctx context.Context, storyID string, contribution *models.Contribution, updatedText string) error {
	if _, err := e.gw.AddContribution(ctx, contribution); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	if err := e.gw.AppendStoryText(ctx, storyID, updatedText); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}

// GenerateTwist produces a plot twist and appends it as a contribution
// authored by the system, through the same persist path as a user turn.
func (e *Engine) GenerateTwist(ctx context.Context, channelID, intensity, promptHint string) (string, error) {
	snap, err := e.snapshot(channelID)
	if err != nil {
		return "", err
	}

	settings, err := e.gw.GetGuildSettings(ctx, snap.guildID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	if err := e.checkDailyLimit(ctx, settings, "plottwist", settings.DailyTwistLimit); err != nil {
		return "", err
	}

	twist, err := e.gen.GeneratePlotTwist(ctx, tail(snap.currentText, contextWindow), intensity, promptHint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationExhausted, err)
	}

	contribution := models.Contribution{
		StoryID:     snap.storyID,
		UserID:      SystemAuthorID,
		Username:    "narrator",
		DisplayName: "Narrator",
		Content:     twist,
		Timestamp:   e.now(),
	}

	updatedText := snap.currentText + "\n" + twist
	if err := e.persistAppend(ctx, snap.storyID, &contribution, updatedText); err != nil {
		return "", err
	}

	e.mu.Lock()
	if entry, ok := e.active[channelID]; ok {
		entry.currentText = updatedText
		entry.contributionCount++
		entry.lastAuthorID = SystemAuthorID
	}
	e.mu.Unlock()

	return twist, nil
}

// GenerateRecap summarizes the story so far without mutating it.
func (e *Engine) GenerateRecap(ctx context.Context, channelID string) (string, error) {
	snap, err := e.snapshot(channelID)
	if err != nil {
		return "", err
	}

	settings, err := e.gw.GetGuildSettings(ctx, snap.guildID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	if err := e.checkDailyLimit(ctx, settings, "recap", settings.DailyRecapLimit); err != nil {
		return "", err
	}

	recap, err := e.gen.GenerateRecap(ctx, tail(snap.currentText, contextWindow))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationExhausted, err)
	}
	return recap, nil
}

// checkDailyLimit bumps the date-bucketed counter and rejects once the
// guild's free-tier cap is exceeded. Premium guilds are exempt.
func (e *Engine) checkDailyLimit(ctx context.Context, settings *models.GuildSettings, feature string, limit int) error {
	if settings.Premium || limit <= 0 {
		return nil
	}
	day := e.now().Format("2006-01-02")
	count, err := e.gw.IncrementDailyUsage(ctx, settings.GuildID, feature, day)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	if count > limit {
		return ErrDailyLimitReached
	}
	return nil
}

// End closes a channel's story: one durable update setting the end timestamp
// with the final text snapshot, a best-effort closing recap, then removal
// from the active map. The channel-authorization predicate applies here the
// same as on start and accept. A repeated End finds no session and reports
// ErrNoActiveSession, which is the desired idempotent behavior.
func (e *Engine) End(ctx context.Context, channelID string, isAdmin bool) (string, string, error) {
	snap, err := e.snapshot(channelID)
	if err != nil {
		return "", "", err
	}

	settings, err := e.gw.GetGuildSettings(ctx, snap.guildID)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	if !allowedChannel(settings, channelID, isAdmin) {
		return "", "", ErrChannelNotAuthorized
	}

	if err := e.gw.EndStory(ctx, snap.storyID, snap.currentText, e.now()); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}

	recap, err := e.gen.GenerateRecap(ctx, tail(snap.currentText, contextWindow))
	if err != nil {
		// The close already happened; a missing recap must not block it.
		log.Printf("[SESSION] Closing recap failed for story %s: %v", snap.storyID, err)
		recap = ""
	}

	e.mu.Lock()
	delete(e.active, channelID)
	e.mu.Unlock()

	log.Printf("[SESSION] Ended story %s in channel %s (%d contributions)", snap.storyID, channelID, snap.contributionCount)

	e.applyRetention(ctx, snap.guildID)

	return snap.currentText, recap, nil
}

// applyRetention purges ended stories past the guild's retention horizon or
// stored-story cap, oldest first, cascading to their contributions.
// Best-effort: failures are logged, never surfaced.
func (e *Engine) applyRetention(ctx context.Context, guildID string) {
	settings, err := e.gw.GetGuildSettings(ctx, guildID)
	if err != nil {
		log.Printf("[RETENTION] Skipping guild %s: %v", guildID, err)
		return
	}
	if settings.Premium {
		return
	}

	stories, err := e.gw.GetEndedStories(ctx, guildID)
	if err != nil {
		log.Printf("[RETENTION] Listing ended stories for guild %s failed: %v", guildID, err)
		return
	}

	cutoff := e.now().AddDate(0, 0, -settings.RetentionDays)
	kept := 0
	for _, s := range stories {
		if s.EndedAt != nil && settings.RetentionDays > 0 && s.EndedAt.Before(cutoff) {
			e.purgeStory(ctx, s)
			continue
		}
		kept++
	}

	if settings.MaxStoredStories <= 0 {
		return
	}
	excess := kept - settings.MaxStoredStories
	for _, s := range stories {
		if excess <= 0 {
			break
		}
		if s.EndedAt != nil && (settings.RetentionDays <= 0 || !s.EndedAt.Before(cutoff)) {
			e.purgeStory(ctx, s)
			excess--
		}
	}
}

func (e *Engine) purgeStory(ctx context.Context, story models.Story) {
	id := story.ID.Hex()
	if err := e.gw.DeleteStoryCascade(ctx, id); err != nil {
		log.Printf("[RETENTION] Purge of story %s failed: %v", id, err)
		return
	}
	log.Printf("[RETENTION] Purged story %s (%q) from guild %s", id, story.Title, story.GuildID)
}

// Export renders a stored story into an external document exactly once.
// The export client creates a new document on every call, so idempotence is
// enforced here: a per-story lock plus check-then-set of the document
// reference.
func (e *Engine) Export(ctx context.Context, storyID string) (*ExportResult, error) {
	if e.exp == nil || !e.exp.Available() {
		return nil, ErrExportUnavailable
	}

	lock := e.exportLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	story, err := e.gw.GetStory(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	if story == nil {
		return nil, ErrStoryNotFound
	}
	if story.DocURL != "" {
		return &ExportResult{URL: story.DocURL, AlreadyExported: true}, nil
	}

	contributions, err := e.gw.GetContributions(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}

	url, err := e.exp.ExportStory(ctx, story, contributions)
	if err != nil {
		return nil, fmt.Errorf("export failed: %w", err)
	}

	if err := e.gw.SetStoryDocURL(ctx, storyID, url); err != nil {
		// The document exists; losing the reference risks a duplicate on the
		// next request, so make the failure loud.
		log.Printf("[EXPORT] Recording document reference for story %s failed: %v", storyID, err)
	}

	return &ExportResult{URL: url}, nil
}

// ExportLatest exports the most recent story of a channel.
func (e *Engine) ExportLatest(ctx context.Context, channelID string) (*ExportResult, error) {
	if e.exp == nil || !e.exp.Available() {
		return nil, ErrExportUnavailable
	}
	stories, err := e.gw.GetRecentStories(ctx, channelID, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	if len(stories) == 0 {
		return nil, ErrStoryNotFound
	}
	return e.Export(ctx, stories[0].ID.Hex())
}

func (e *Engine) exportLock(storyID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.exportLocks[storyID]
	if !ok {
		lock = &sync.Mutex{}
		e.exportLocks[storyID] = lock
	}
	return lock
}

// LoadActiveStories reconstructs the in-memory map from the durable store on
// startup. The durable final text is trusted over replaying contributions;
// stories already past a configured contribution cap are closed during the
// pass instead of loaded.
func (e *Engine) LoadActiveStories(ctx context.Context) error {
	stories, err := e.gw.GetActiveStories(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}

	loaded := 0
	for _, story := range stories {
		storyID := story.ID.Hex()

		settings, err := e.gw.GetGuildSettings(ctx, story.GuildID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
		}

		maxTurns := settings.MaxContributionsPerStory
		if maxTurns > 0 && !settings.Premium && story.ContributionCount >= maxTurns {
			if err := e.gw.EndStory(ctx, storyID, story.FinalText, e.now()); err != nil {
				log.Printf("[RECONCILE] Auto-end of over-cap story %s failed: %v", storyID, err)
			} else {
				log.Printf("[RECONCILE] Auto-ended story %s (%d contributions, cap %d)", storyID, story.ContributionCount, maxTurns)
			}
			continue
		}

		contributions, err := e.gw.GetContributions(ctx, storyID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
		}
		lastAuthor := ""
		if len(contributions) > 0 {
			lastAuthor = contributions[len(contributions)-1].UserID
		}

		e.mu.Lock()
		e.active[story.ChannelID] = &activeStory{
			storyID:           storyID,
			channelID:         story.ChannelID,
			guildID:           story.GuildID,
			title:             story.Title,
			openingText:       story.OpeningText,
			currentText:       story.FinalText,
			contributionCount: story.ContributionCount,
			lastAuthorID:      lastAuthor,
			startedAt:         story.StartedAt,
		}
		e.mu.Unlock()
		loaded++
	}

	log.Printf("[RECONCILE] Loaded %d active stories from the store", loaded)
	return nil
}

// ActiveChannels lists the channels with a running story.
func (e *Engine) ActiveChannels() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	channels := make([]string, 0, len(e.active))
	for id, entry := range e.active {
		if entry.storyID != "" {
			channels = append(channels, id)
		}
	}
	return channels
}

// Settings returns a guild's configuration, materializing defaults on first
// access.
func (e *Engine) Settings(ctx context.Context, guildID string) (*models.GuildSettings, error) {
	settings, err := e.gw.GetGuildSettings(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return settings, nil
}

// UpdateSettings merges a partial patch into a guild's configuration. A
// patch that flips the rogue flag also arms or disarms the background loop,
// keeping the durable flag and the live task in step.
func (e *Engine) UpdateSettings(ctx context.Context, guildID string, patch *models.SettingsPatch) (*models.GuildSettings, error) {
	settings, err := e.gw.MergeGuildSettings(ctx, guildID, patch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}

	if patch.RogueEnabled != nil {
		if *patch.RogueEnabled && settings.RogueChannelID != "" {
			e.armRogue(guildID, settings.RogueChannelID)
		} else if !*patch.RogueEnabled {
			e.disarmRogue(guildID)
		}
	}

	return settings, nil
}

// SetDesignatedChannel restricts ordinary story commands to one channel.
func (e *Engine) SetDesignatedChannel(ctx context.Context, guildID, channelID string) (*models.GuildSettings, error) {
	return e.UpdateSettings(ctx, guildID, &models.SettingsPatch{DesignatedChannelID: &channelID})
}

// ClearDesignatedChannel lifts the channel restriction.
func (e *Engine) ClearDesignatedChannel(ctx context.Context, guildID string) (*models.GuildSettings, error) {
	empty := ""
	return e.UpdateSettings(ctx, guildID, &models.SettingsPatch{DesignatedChannelID: &empty})
}

// DenialLine picks an in-character excuse for a randomly denied request.
func (e *Engine) DenialLine() string {
	return DenialLines[e.intn(len(DenialLines))]
}

func (e *Engine) rand01() float64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64()
}

func (e *Engine) intn(n int) int {
	if n <= 0 {
		return 0
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Intn(n)
}

// tail returns at most n trailing bytes of s, aligned to a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := len(s) - n
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}
