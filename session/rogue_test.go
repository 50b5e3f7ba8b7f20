package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storybot/models"
)

func TestEnableAndDisableRogue(t *testing.T) {
	e, gw, gen, _ := newTestEngine()
	gw.seedSettings("g1", nil)
	ctx := context.Background()

	require.NoError(t, e.EnableRogue(ctx, "g1", "c1"))
	defer e.Shutdown()

	settings, err := e.Settings(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, settings.RogueEnabled)
	assert.Equal(t, "c1", settings.RogueChannelID)

	reply, err := e.RogueReply(ctx, "g1", "u1", "are you alive?")
	require.NoError(t, err)
	assert.Equal(t, "Of course I meant to do that.", reply)

	require.NoError(t, e.DisableRogue(ctx, "g1"))

	settings, err = e.Settings(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, settings.RogueEnabled)

	_, err = e.RogueReply(ctx, "g1", "u1", "hello?")
	assert.ErrorIs(t, err, ErrRogueDisabled)

	// Disabling drops the guild's conversation transcript.
	assert.Contains(t, gen.cleared(), "g1")
}

func TestRogueReplyWithoutEnable(t *testing.T) {
	e, gw, _, _ := newTestEngine()
	gw.seedSettings("g1", nil)

	_, err := e.RogueReply(context.Background(), "g1", "u1", "hello?")
	assert.ErrorIs(t, err, ErrRogueDisabled)
}

func TestEnableRogueTwiceKeepsSingleLoop(t *testing.T) {
	e, gw, _, _ := newTestEngine()
	gw.seedSettings("g1", nil)
	ctx := context.Background()

	require.NoError(t, e.EnableRogue(ctx, "g1", "c1"))
	require.NoError(t, e.EnableRogue(ctx, "g1", "c2"))
	defer e.Shutdown()

	e.mu.Lock()
	count := len(e.rogue)
	channel := e.rogue["g1"].channelID
	e.mu.Unlock()

	assert.Equal(t, 1, count)
	assert.Equal(t, "c2", channel)
}

func TestConcurrentEnableLeavesNoOrphanLoop(t *testing.T) {
	notify := newChanNotifier()
	gw := newFakeGateway()
	gw.seedSettings("g1", nil)
	gen := &fakeGenerator{filler: "filler", opening: "hi", reply: "ok"}
	e := New(gw, gen, nil, notify,
		WithThinkingPause(0),
		WithRogueTiming(time.Millisecond, time.Millisecond, 0),
	)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, e.EnableRogue(context.Background(), "g1", "c1"))
		}()
	}
	wg.Wait()

	e.mu.Lock()
	count := len(e.rogue)
	e.mu.Unlock()
	assert.Equal(t, 1, count)

	// Shutdown must reach every loop. An overwritten session would survive it
	// and keep emitting filler on this aggressive timing.
	e.Shutdown()
	for len(notify.ch) > 0 {
		<-notify.ch
	}
	select {
	case got := <-notify.ch:
		t.Fatalf("loop still running after shutdown, got %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRogueFillerFiresWhenQuiet(t *testing.T) {
	notify := newChanNotifier()
	gw := newFakeGateway()
	gw.seedSettings("g1", nil)
	gen := &fakeGenerator{filler: "Anyone still out there?", opening: "hi", reply: "ok"}
	e := New(gw, gen, nil, notify,
		WithThinkingPause(0),
		WithRogueTiming(time.Millisecond, time.Millisecond, 0),
	)
	defer e.Shutdown()

	require.NoError(t, e.EnableRogue(context.Background(), "g1", "c1"))

	// The opening announcement lands first, then the idle filler.
	select {
	case got := <-notify.ch:
		assert.Equal(t, "hi", got)
	case <-time.After(2 * time.Second):
		t.Fatal("opening announcement never arrived")
	}
	select {
	case got := <-notify.ch:
		assert.Equal(t, "Anyone still out there?", got)
	case <-time.After(2 * time.Second):
		t.Fatal("filler never arrived")
	}
}

func TestObserveActivitySuppressesFiller(t *testing.T) {
	notify := newChanNotifier()
	gw := newFakeGateway()
	gw.seedSettings("g1", nil)
	gen := &fakeGenerator{filler: "filler", opening: "hi", reply: "ok"}
	e := New(gw, gen, nil, notify,
		WithThinkingPause(0),
		WithRogueTiming(5*time.Millisecond, 5*time.Millisecond, time.Hour),
	)
	defer e.Shutdown()

	require.NoError(t, e.EnableRogue(context.Background(), "g1", "c1"))
	<-notify.ch // opening

	// With an hour-long quiet threshold the loop wakes but never speaks.
	e.ObserveActivity("g1")
	select {
	case got := <-notify.ch:
		t.Fatalf("unexpected filler while channel active: %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestResumeRogueRearmsPersistedGuilds(t *testing.T) {
	e, gw, _, _ := newTestEngine()
	gw.seedSettings("g1", func(s *models.GuildSettings) {
		s.RogueEnabled = true
		s.RogueChannelID = "c1"
	})
	gw.seedSettings("g2", nil)
	ctx := context.Background()

	require.NoError(t, e.ResumeRogue(ctx))
	defer e.Shutdown()

	_, err := e.RogueReply(ctx, "g1", "u1", "still rogue?")
	assert.NoError(t, err)

	_, err = e.RogueReply(ctx, "g2", "u1", "you too?")
	assert.ErrorIs(t, err, ErrRogueDisabled)
}

func TestPatchFlippingRogueFlagArmsAndDisarms(t *testing.T) {
	e, gw, _, _ := newTestEngine()
	gw.seedSettings("g1", nil)
	ctx := context.Background()

	enabled := true
	channel := "c1"
	_, err := e.UpdateSettings(ctx, "g1", &models.SettingsPatch{RogueEnabled: &enabled, RogueChannelID: &channel})
	require.NoError(t, err)
	defer e.Shutdown()

	_, err = e.RogueReply(ctx, "g1", "u1", "hello")
	assert.NoError(t, err)

	disabled := false
	_, err = e.UpdateSettings(ctx, "g1", &models.SettingsPatch{RogueEnabled: &disabled})
	require.NoError(t, err)

	_, err = e.RogueReply(ctx, "g1", "u1", "hello")
	assert.ErrorIs(t, err, ErrRogueDisabled)
}

func TestShutdownStopsAllLoops(t *testing.T) {
	e, gw, _, _ := newTestEngine()
	gw.seedSettings("g1", nil)
	gw.seedSettings("g2", nil)
	ctx := context.Background()

	require.NoError(t, e.EnableRogue(ctx, "g1", "c1"))
	require.NoError(t, e.EnableRogue(ctx, "g2", "c2"))

	done := make(chan struct{})
	go func() {
		e.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not finish")
	}

	_, err := e.RogueReply(ctx, "g1", "u1", "hello")
	assert.ErrorIs(t, err, ErrRogueDisabled)
}
