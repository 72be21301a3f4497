package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/ports"
)

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEffectDispatcher sets the host handler for redirect effects.
// Without one, effects are only returned in the Outcome.
func WithEffectDispatcher(d ports.EffectDispatcher) EngineOption {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides the event id source.
func WithIDGenerator(gen IDGenerator) EngineOption {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// WithNotices overrides the fixed bot texts. Empty fields keep their default.
func WithNotices(n Notices) EngineOption {
	return func(e *Engine) {
		e.notices = e.notices.merge(n)
	}
}
