package runtime

import (
	"strings"
	"time"

	"github.com/aretw0/flowchat/pkg/domain"
)

// RedirectPrefix is stripped from redirect message content to get the target URL.
const RedirectPrefix = "Redirecting to: "

// Normalized is the client-visible result of one flow step.
type Normalized struct {
	Events   []domain.ChatEvent
	Paused   domain.PausedState
	Finished bool
	Effects  []domain.Effect
}

// Normalizer converts raw backend steps into ordered chat events.
type Normalizer struct {
	Now   func() time.Time
	NewID IDGenerator
}

// Normalize applies the per-message rules in source order, then derives the
// paused state from the step envelope. completionNotice is appended as a
// trailing bot event when the step is finished.
func (n *Normalizer) Normalize(step *domain.FlowStep, completionNotice string) Normalized {
	var out Normalized
	if step == nil {
		out.Paused = domain.PausedState{Kind: domain.PauseNone}
		return out
	}

	out.Events = make([]domain.ChatEvent, 0, len(step.Messages)+1)
	for _, msg := range step.Messages {
		if msg.Type == domain.MessageTypeRedirect {
			if target := redirectTarget(msg); target != "" {
				out.Effects = append(out.Effects, domain.Effect{Type: domain.EffectOpenURL, URL: target})
			}
			continue
		}
		out.Events = append(out.Events, n.messageEvent(msg))
	}

	switch {
	case step.Finished:
		out.Finished = true
		out.Paused = domain.PausedState{Kind: domain.PauseNone}
		out.Events = append(out.Events, n.BotEvent(completionNotice))
	case step.AwaitingInput != nil:
		out.Paused = domain.PausedState{Kind: pauseKind(step.AwaitingInput.Type)}
	default:
		out.Paused = domain.PausedState{Kind: domain.PauseNone}
	}

	return out
}

func (n *Normalizer) messageEvent(msg domain.RawMessage) domain.ChatEvent {
	if msg.Type == domain.MessageTypeBranch && msg.AwaitingInput {
		ev := n.BotEvent("")
		ev.AwaitingKind = domain.AwaitingBranch
		ev.BranchOptions = append([]string{}, msg.Options...)
		return ev
	}

	text := msg.Content
	if text == "" {
		text = msg.Message
	}
	ev := n.BotEvent(text)
	if msg.Type == domain.MessageTypeConfirmation && msg.AwaitingInput {
		ev.AwaitingKind = domain.AwaitingConfirmation
	}
	return ev
}

// BotEvent builds a plain bot-origin event.
func (n *Normalizer) BotEvent(text string) domain.ChatEvent {
	return n.event(domain.OriginBot, text)
}

// UserEvent builds a plain user-origin event.
func (n *Normalizer) UserEvent(text string) domain.ChatEvent {
	return n.event(domain.OriginUser, text)
}

func (n *Normalizer) event(origin domain.Origin, text string) domain.ChatEvent {
	return domain.ChatEvent{
		ID:           n.NewID(),
		Origin:       origin,
		Text:         text,
		CreatedAt:    n.Now(),
		AwaitingKind: domain.AwaitingNone,
	}
}

func redirectTarget(msg domain.RawMessage) string {
	raw := msg.Content
	if raw == "" {
		raw = msg.Message
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, RedirectPrefix))
}

func pauseKind(awaitType string) domain.PauseKind {
	switch awaitType {
	case domain.MessageTypeBranch:
		return domain.PauseBranch
	case domain.MessageTypeConfirmation:
		return domain.PauseConfirmation
	default:
		return domain.PauseQuestion
	}
}
