package runner

import (
	"context"

	"github.com/aretw0/flowchat/pkg/domain"
)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Output presents what a transition produced. state is the conversation
	// right after it.
	Output(ctx context.Context, out domain.Outcome, state *domain.SessionState) error

	// Input reads the next line from the user.
	Input(ctx context.Context) (string, error)

	// SystemOutput presents a meta-message (hints, status) distinct from bot content.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer is a function that transforms bot text before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)
