package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/flowchat/pkg/domain"
)

// CombineHooks returns hooks that call every non-nil hook of each set in order.
func CombineHooks(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks

	out.OnEventAppended = func(ctx context.Context, ref domain.ConversationRef, ev domain.ChatEvent) {
		for _, s := range sets {
			if s.OnEventAppended != nil {
				s.OnEventAppended(ctx, ref, ev)
			}
		}
	}
	out.OnPausedChanged = func(ctx context.Context, ref domain.ConversationRef, p domain.PausedState) {
		for _, s := range sets {
			if s.OnPausedChanged != nil {
				s.OnPausedChanged(ctx, ref, p)
			}
		}
	}
	out.OnBusyChanged = func(ctx context.Context, ref domain.ConversationRef, busy bool) {
		for _, s := range sets {
			if s.OnBusyChanged != nil {
				s.OnBusyChanged(ctx, ref, busy)
			}
		}
	}
	out.OnTransportCall = func(ctx context.Context, ev *domain.TransportEvent) {
		for _, s := range sets {
			if s.OnTransportCall != nil {
				s.OnTransportCall(ctx, ev)
			}
		}
	}
	out.OnFallback = func(ctx context.Context, ref domain.ConversationRef, op domain.Operation, err error) {
		for _, s := range sets {
			if s.OnFallback != nil {
				s.OnFallback(ctx, ref, op, err)
			}
		}
	}
	out.OnRejected = func(ctx context.Context, ref domain.ConversationRef, err error) {
		for _, s := range sets {
			if s.OnRejected != nil {
				s.OnRejected(ctx, ref, err)
			}
		}
	}
	return out
}

// LoggingHooks logs transport calls and appended events.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnEventAppended: func(ctx context.Context, ref domain.ConversationRef, ev domain.ChatEvent) {
			logger.DebugContext(ctx, "event_appended",
				"bot_id", ref.BotID,
				"session_id", ref.SessionID,
				"event_id", ev.ID,
				"origin", ev.Origin,
				"awaiting", ev.AwaitingKind)
		},
		OnTransportCall: func(ctx context.Context, ev *domain.TransportEvent) {
			if ev.Err != nil {
				logger.WarnContext(ctx, "transport_call",
					"bot_id", ev.BotID,
					"session_id", ev.SessionID,
					"operation", ev.Operation,
					"duration", ev.Duration,
					"error", ev.Err)
				return
			}
			logger.InfoContext(ctx, "transport_call",
				"bot_id", ev.BotID,
				"session_id", ev.SessionID,
				"operation", ev.Operation,
				"duration", ev.Duration)
		},
	}
}
