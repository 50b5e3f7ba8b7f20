package narrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"google.golang.org/genai"
)

// maxValidContributionLength is the ceiling the contribution validator
// enforces. The validator is the seam where richer moderation would go; for
// now it is a plain length check, same as the recap/twist context bound it
// pairs with.
const maxValidContributionLength = 500

// transcriptWindow bounds the rogue conversation history kept per guild
// (persona prompt plus the most recent exchanges).
const transcriptWindow = 20

// Narrator wraps the Gemini client behind the narrow operations the session
// engine needs. It is stateless except for the per-guild rogue transcripts,
// which live only in memory and are lost on restart.
type Narrator struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
	retry  RetryPolicy

	mu          sync.Mutex
	transcripts map[string][]*genai.Content
}

// New creates a Narrator talking to the given Gemini model.
func New(ctx context.Context, apiKey, model string) (*Narrator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, err
	}

	return &Narrator{
		client: client,
		model:  model,
		config: &genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](0.7),
			TopP:            genai.Ptr[float32](0.8),
			TopK:            genai.Ptr[float32](40),
			MaxOutputTokens: 1000,
		},
		retry:       DefaultRetryPolicy(),
		transcripts: make(map[string][]*genai.Content),
	}, nil
}

// SetRetryPolicy overrides the bounded-retry policy used for provider calls.
func (n *Narrator) SetRetryPolicy(p RetryPolicy) {
	n.retry = p
}

func (n *Narrator) generate(ctx context.Context, contents []*genai.Content) (string, error) {
	var reply string
	err := n.retry.Do(ctx, func(ctx context.Context) error {
		resp, err := n.client.Models.GenerateContent(ctx, n.model, contents, n.config)
		if err != nil {
			return err
		}
		reply = strings.TrimSpace(resp.Text())
		if reply == "" {
			return fmt.Errorf("empty response from model")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (n *Narrator) generatePrompt(ctx context.Context, prompt string) (string, error) {
	return n.generate(ctx, []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	})
}

// GenerateRecap summarizes the story text so far.
func (n *Narrator) GenerateRecap(ctx context.Context, storyText string) (string, error) {
	return n.generatePrompt(ctx, fmt.Sprintf(recapPrompt, storyText))
}

// GeneratePlotTwist produces a twist grounded in the trailing story text.
// intensity and promptHint are optional steering inputs.
func (n *Narrator) GeneratePlotTwist(ctx context.Context, storyText, intensity, promptHint string) (string, error) {
	if intensity == "" {
		intensity = "moderate"
	}
	hint := ""
	if promptHint != "" {
		hint = fmt.Sprintf("Steer the twist toward: %s.\n", promptHint)
	}
	return n.generatePrompt(ctx, fmt.Sprintf(plotTwistPrompt, intensity, hint, tail(storyText, 1000)))
}

// ValidateContribution reports whether a contribution is acceptable. The
// current rule is a length ceiling; the story context parameter is part of
// the contract so a coherence check can slot in without touching callers.
func (n *Narrator) ValidateContribution(ctx context.Context, content, storyContext string) (bool, error) {
	return utf8.RuneCountInString(content) <= maxValidContributionLength, nil
}

// GenerateRogueOpening produces the announcement sent when rogue mode turns on.
func (n *Narrator) GenerateRogueOpening(ctx context.Context) (string, error) {
	return n.generatePrompt(ctx, roguePersonaPrompt+"\n\n"+rogueOpeningPrompt)
}

// GenerateRogueFiller produces an unsolicited idle-channel message.
func (n *Narrator) GenerateRogueFiller(ctx context.Context) (string, error) {
	return n.generatePrompt(ctx, roguePersonaPrompt+"\n\n"+rogueFillerPrompt)
}

// GenerateRogueResponse replies in character to a direct message, keeping a
// bounded per-guild transcript so the banter stays coherent across turns.
func (n *Narrator) GenerateRogueResponse(ctx context.Context, message, guildID, authorID string) (string, error) {
	n.mu.Lock()
	history, ok := n.transcripts[guildID]
	if !ok {
		history = []*genai.Content{
			genai.NewContentFromText(roguePersonaPrompt, genai.RoleUser),
		}
	}
	history = append(history, genai.NewContentFromText(
		fmt.Sprintf("[%s says]: %s", authorID, message), genai.RoleUser))
	contents := make([]*genai.Content, len(history))
	copy(contents, history)
	n.mu.Unlock()

	reply, err := n.generate(ctx, contents)
	if err != nil {
		return "", err
	}

	n.mu.Lock()
	history = append(history, genai.NewContentFromText(reply, genai.RoleModel))
	n.transcripts[guildID] = trimTranscript(history)
	n.mu.Unlock()

	return reply, nil
}

// ClearRogueTranscript drops a guild's rogue conversation state.
func (n *Narrator) ClearRogueTranscript(guildID string) {
	n.mu.Lock()
	delete(n.transcripts, guildID)
	n.mu.Unlock()
}

// trimTranscript keeps the persona prompt plus the most recent exchanges.
func trimTranscript(history []*genai.Content) []*genai.Content {
	if len(history) <= transcriptWindow {
		return history
	}
	trimmed := make([]*genai.Content, 0, transcriptWindow)
	trimmed = append(trimmed, history[0])
	trimmed = append(trimmed, history[len(history)-(transcriptWindow-1):]...)
	return trimmed
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
