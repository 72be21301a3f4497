package runtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/flowchat/internal/logging"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/ports"
)

// Engine holds the shared dependencies of every conversation it creates.
// It is stateless with respect to individual conversations and safe for concurrent use.
type Engine struct {
	transport  ports.FlowTransport
	dispatcher ports.EffectDispatcher
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	notices    Notices
	now        func() time.Time
	newID      IDGenerator
}

// NewEngine creates a new engine talking to the given transport.
func NewEngine(transport ports.FlowTransport, opts ...EngineOption) (*Engine, error) {
	if transport == nil {
		return nil, errors.New("runtime: transport is required")
	}

	e := &Engine{
		transport: transport,
		logger:    logging.NewNop(),
		notices:   DefaultNotices(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.newID == nil {
		e.newID = NewULIDGenerator(e.now)
	}
	return e, nil
}

// Notices returns the texts the engine synthesizes.
func (e *Engine) Notices() Notices {
	return e.notices
}

// NewConversation creates an uninitialized conversation with a bot.
func (e *Engine) NewConversation(botID string) *Conversation {
	return &Conversation{
		engine: e,
		state:  domain.NewSessionState(botID),
	}
}

// Resume rebuilds a conversation from a persisted state.
// The state is copied; the caller keeps ownership of its value.
func (e *Engine) Resume(state *domain.SessionState) (*Conversation, error) {
	if state == nil {
		return nil, errors.New("runtime: cannot resume nil state")
	}
	cp := state.Snapshot()
	if cp.Events == nil {
		cp.Events = []domain.ChatEvent{}
	}
	if cp.Paused.Kind == "" {
		cp.Paused.Kind = domain.PauseNone
	}
	return &Conversation{engine: e, state: cp}, nil
}

func (e *Engine) normalizer() *Normalizer {
	return &Normalizer{Now: e.now, NewID: e.newID}
}

func (e *Engine) dispatch(ctx context.Context, ref domain.ConversationRef, effects []domain.Effect) {
	if e.dispatcher == nil {
		return
	}
	for _, eff := range effects {
		if err := e.dispatcher.Dispatch(ctx, eff); err != nil {
			e.logger.Warn("Effect dispatch failed",
				"bot_id", ref.BotID,
				"effect", eff.Type,
				"url", eff.URL,
				"error", err)
		}
	}
}
