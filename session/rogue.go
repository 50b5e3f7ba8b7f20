package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.uber.org/atomic"

	"storybot/models"
)

// rogueSession is the ephemeral per-guild state while rogue mode is on. The
// transcript itself lives in the generator; this holds the loop handle and
// the idle clock. None of it survives a restart — the mode flag does, in the
// guild settings.
type rogueSession struct {
	guildID      string
	channelID    string
	cancel       context.CancelFunc
	done         chan struct{}
	lastActivity *atomic.Int64 // unix nanos, touched by the loop and by observed traffic
}

// EnableRogue turns rogue mode on for a guild: persists the flag and target
// channel, announces the takeover, and starts the background loop. Enabling
// while already enabled cancels the previous loop before starting the new
// one, so loops never accumulate.
func (e *Engine) EnableRogue(ctx context.Context, guildID, channelID string) error {
	enabled := true
	patch := &models.SettingsPatch{RogueEnabled: &enabled, RogueChannelID: &channelID}
	if _, err := e.gw.MergeGuildSettings(ctx, guildID, patch); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}

	if opening, err := e.gen.GenerateRogueOpening(ctx); err != nil {
		log.Printf("[ROGUE] Opening announcement failed for guild %s: %v", guildID, err)
	} else if err := e.notify.Send(ctx, channelID, opening); err != nil {
		log.Printf("[ROGUE] Delivering opening to channel %s failed: %v", channelID, err)
	}

	e.armRogue(guildID, channelID)
	return nil
}

// DisableRogue turns rogue mode off: persists the flag, cancels the loop and
// drops the guild's conversation transcript and idle state.
func (e *Engine) DisableRogue(ctx context.Context, guildID string) error {
	disabled := false
	patch := &models.SettingsPatch{RogueEnabled: &disabled}
	if _, err := e.gw.MergeGuildSettings(ctx, guildID, patch); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}

	e.disarmRogue(guildID)
	return nil
}

// ResumeRogue re-arms the background loop for every guild whose durable
// rogue flag is set. Called once at startup; transcripts start empty.
func (e *Engine) ResumeRogue(ctx context.Context) error {
	guilds, err := e.gw.GetRogueGuilds(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	resumed := 0
	for _, g := range guilds {
		if g.RogueChannelID == "" {
			continue
		}
		e.armRogue(g.GuildID, g.RogueChannelID)
		resumed++
	}
	if resumed > 0 {
		log.Printf("[ROGUE] Resumed %d rogue loops", resumed)
	}
	return nil
}

// ObserveActivity resets a guild's idle clock when ordinary traffic is seen
// in the rogue channel. It never produces a reply by itself.
func (e *Engine) ObserveActivity(guildID string) {
	e.mu.Lock()
	rs := e.rogue[guildID]
	e.mu.Unlock()
	if rs != nil {
		rs.lastActivity.Store(e.now().UnixNano())
	}
}

// RogueReply answers a direct message in character. This is the immediate
// path, gated only by the enabled flag — the idle timer plays no part. A
// short pause before generating keeps the reply from feeling instantaneous.
func (e *Engine) RogueReply(ctx context.Context, guildID, authorID, message string) (string, error) {
	e.mu.Lock()
	rs := e.rogue[guildID]
	e.mu.Unlock()
	if rs == nil {
		return "", ErrRogueDisabled
	}

	rs.lastActivity.Store(e.now().UnixNano())

	if e.thinkingPause > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(e.thinkingPause):
		}
	}

	reply, err := e.gen.GenerateRogueResponse(ctx, message, guildID, authorID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationExhausted, err)
	}

	rs.lastActivity.Store(e.now().UnixNano())
	return reply, nil
}

// Shutdown cancels every guild's background loop and waits for each to
// finish. Called before process exit.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	sessions := make([]*rogueSession, 0, len(e.rogue))
	for _, rs := range e.rogue {
		sessions = append(sessions, rs)
	}
	e.rogue = make(map[string]*rogueSession)
	e.mu.Unlock()

	for _, rs := range sessions {
		rs.cancel()
	}
	for _, rs := range sessions {
		<-rs.done
	}
}

// armRogue installs a fresh loop for the guild, replacing (and waiting out)
// any previous one so at most one loop runs per guild. The map slot is
// re-checked before install: a session armed by a concurrent caller is torn
// down like any other predecessor instead of being overwritten and leaked.
func (e *Engine) armRogue(guildID, channelID string) {
	ctx, cancel := context.WithCancel(context.Background())
	rs := &rogueSession{
		guildID:      guildID,
		channelID:    channelID,
		cancel:       cancel,
		done:         make(chan struct{}),
		lastActivity: atomic.NewInt64(e.now().UnixNano()),
	}

	for {
		e.mu.Lock()
		prev := e.rogue[guildID]
		if prev == nil {
			e.rogue[guildID] = rs
			e.mu.Unlock()
			break
		}
		delete(e.rogue, guildID)
		e.mu.Unlock()

		prev.cancel()
		<-prev.done
	}

	go e.rogueLoop(ctx, rs)
}

func (e *Engine) disarmRogue(guildID string) {
	e.mu.Lock()
	rs := e.rogue[guildID]
	delete(e.rogue, guildID)
	e.mu.Unlock()

	if rs != nil {
		rs.cancel()
		<-rs.done
	}
	e.gen.ClearRogueTranscript(guildID)
}

// rogueLoop wakes after a randomized delay, and if the channel has been
// quiet long enough, emits a generated filler message and resets the idle
// clock. Cancellation is cooperative: it takes effect at the next select,
// never mid-send.
func (e *Engine) rogueLoop(ctx context.Context, rs *rogueSession) {
	defer close(rs.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.rogueDelay()):
		}

		idle := e.now().Sub(time.Unix(0, rs.lastActivity.Load()))
		if idle < e.rogueQuiet {
			continue
		}

		filler, err := e.gen.GenerateRogueFiller(ctx)
		if err != nil {
			log.Printf("[ROGUE] Filler generation failed for guild %s: %v", rs.guildID, err)
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if err := e.notify.Send(ctx, rs.channelID, filler); err != nil {
			log.Printf("[ROGUE] Delivering filler to channel %s failed: %v", rs.channelID, err)
			continue
		}
		rs.lastActivity.Store(e.now().UnixNano())
	}
}

// rogueDelay draws the next wake-up delay from the configured window.
func (e *Engine) rogueDelay() time.Duration {
	window := e.rogueDelayMax - e.rogueDelayMin
	if window <= 0 {
		return e.rogueDelayMin
	}
	e.rngMu.Lock()
	jitter := time.Duration(e.rng.Int63n(int64(window) + 1))
	e.rngMu.Unlock()
	return e.rogueDelayMin + jitter
}
