package ports

import (
	"context"

	"github.com/aretw0/flowchat/pkg/domain"
)

// FlowTransport wraps the outbound calls to the flow backend.
// Implementations must not retry: failures are returned as errors wrapping
// domain.ErrNetwork or domain.ErrProtocol.
type FlowTransport interface {
	// StartFlow starts a new flow session for the bot.
	StartFlow(ctx context.Context, botID string) (*domain.FlowStep, error)

	// RespondFlow sends the user's input to an active flow session.
	RespondFlow(ctx context.Context, sessionID string, input domain.FlowInput) (*domain.FlowStep, error)

	// AskQuestion asks the bot's question-answering endpoint.
	AskQuestion(ctx context.Context, botID, question string) (*domain.Answer, error)
}
