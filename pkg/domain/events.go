package domain

import (
	"context"
	"time"
)

// Operation names a transport call issued by the state machine.
type Operation string

const (
	OpStart   Operation = "start"
	OpRespond Operation = "respond"
	OpAsk     Operation = "ask"
)

// ConversationRef identifies the conversation a hook fired for.
type ConversationRef struct {
	BotID     string `json:"bot_id"`
	SessionID string `json:"session_id,omitempty"`
}

// TransportEvent describes one completed transport call.
type TransportEvent struct {
	ConversationRef
	Timestamp time.Time     `json:"timestamp"`
	Operation Operation     `json:"operation"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// LifecycleHooks defines callbacks for conversation observability.
// Hooks run synchronously on the goroutine performing the transition and must not block.
type LifecycleHooks struct {
	OnEventAppended func(context.Context, ConversationRef, ChatEvent)
	OnPausedChanged func(context.Context, ConversationRef, PausedState)
	OnBusyChanged   func(context.Context, ConversationRef, bool)
	OnTransportCall func(context.Context, *TransportEvent)
	// OnFallback fires when a transport failure was converted into an apology event.
	OnFallback func(context.Context, ConversationRef, Operation, error)
	// OnRejected fires when a submission was refused with a validation error.
	OnRejected func(context.Context, ConversationRef, error)
}
