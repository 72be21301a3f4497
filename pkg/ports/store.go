package ports

import (
	"context"

	"github.com/aretw0/flowchat/pkg/domain"
)

// StateStore defines the interface for persisting conversation state.
// Keys are host-side conversation ids, not backend session ids.
type StateStore interface {
	// Save persists the state for a given conversation ID.
	Save(ctx context.Context, conversationID string, state *domain.SessionState) error

	// Load retrieves the state for a given conversation ID.
	// Returns domain.ErrSessionNotFound if the conversation does not exist.
	Load(ctx context.Context, conversationID string) (*domain.SessionState, error)

	// Delete removes the state for a given conversation ID.
	Delete(ctx context.Context, conversationID string) error

	// List returns the ids of all stored conversations.
	List(ctx context.Context) ([]string, error)
}
