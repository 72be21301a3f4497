package ports

import (
	"context"

	"github.com/aretw0/flowchat/pkg/domain"
)

// EffectDispatcher defines how side-effects are executed.
// The conversation emits effects, and the host implements this interface to handle them.
type EffectDispatcher interface {
	Dispatch(ctx context.Context, effect domain.Effect) error
}

// EffectDispatcherFunc adapts a function to EffectDispatcher.
type EffectDispatcherFunc func(ctx context.Context, effect domain.Effect) error

// Dispatch calls f.
func (f EffectDispatcherFunc) Dispatch(ctx context.Context, effect domain.Effect) error {
	return f(ctx, effect)
}
