package flowchat

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/flowchat/internal/runtime"
	"github.com/aretw0/flowchat/pkg/adapters/api"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/ports"
)

// Conversation is the state machine of one chat surface.
type Conversation = runtime.Conversation

// Notices holds the fixed texts the conversation synthesizes.
type Notices = runtime.Notices

// Engine is the high-level entry point of the library.
// It wraps the internal runtime and the backend transport.
type Engine struct {
	runtime   *runtime.Engine
	transport ports.FlowTransport

	apiOpts     []api.Option
	runtimeOpts []runtime.EngineOption
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithTransport injects a custom FlowTransport, bypassing the default HTTP client.
func WithTransport(t ports.FlowTransport) Option {
	return func(e *Engine) {
		e.transport = t
	}
}

// WithToken sends a bearer token on every backend call.
func WithToken(token string) Option {
	return func(e *Engine) {
		e.apiOpts = append(e.apiOpts, api.WithToken(token))
	}
}

// WithTimeout bounds every backend call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.apiOpts = append(e.apiOpts, api.WithTimeout(d))
	}
}

// WithHeaders adds static headers to every backend call.
func WithHeaders(headers map[string]string) Option {
	return func(e *Engine) {
		e.apiOpts = append(e.apiOpts, api.WithHeaders(headers))
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEffectDispatcher lets the host perform redirect effects as they are emitted.
func WithEffectDispatcher(d ports.EffectDispatcher) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithEffectDispatcher(d))
	}
}

// WithNotices overrides the synthesized bot texts. Empty fields keep their default.
func WithNotices(n Notices) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithNotices(n))
	}
}

// New initializes an Engine talking to the flow backend at baseURL.
// If WithTransport is provided, baseURL can be empty.
func New(baseURL string, opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	// Ensure logger is initialized (so we don't pass nil to the runtime)
	if eng.logger == nil {
		eng.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	if eng.transport == nil {
		if baseURL == "" {
			return nil, fmt.Errorf("baseURL is required when no custom transport is provided")
		}
		client, err := api.NewClient(baseURL, append(eng.apiOpts, api.WithLogger(eng.logger))...)
		if err != nil {
			return nil, fmt.Errorf("failed to create backend client: %w", err)
		}
		eng.transport = client
	}

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
	}
	runtimeOpts = append(runtimeOpts, eng.runtimeOpts...)

	rt, err := runtime.NewEngine(eng.transport, runtimeOpts...)
	if err != nil {
		return nil, err
	}
	eng.runtime = rt
	return eng, nil
}

// NewConversation creates an unstarted conversation with a bot.
func (e *Engine) NewConversation(botID string) *Conversation {
	return e.runtime.NewConversation(botID)
}

// ResumeConversation rebuilds a conversation from a persisted state.
func (e *Engine) ResumeConversation(state *domain.SessionState) (*Conversation, error) {
	return e.runtime.Resume(state)
}

// Notices returns the texts the engine synthesizes.
func (e *Engine) Notices() Notices {
	return e.runtime.Notices()
}

// Transport returns the backend transport used by the engine.
func (e *Engine) Transport() ports.FlowTransport {
	return e.transport
}
