package domain

import "time"

// Origin identifies who produced a chat event.
type Origin string

const (
	OriginUser Origin = "user"
	OriginBot  Origin = "bot"
)

// AwaitingKind marks the event the user must respond to.
type AwaitingKind string

const (
	AwaitingNone         AwaitingKind = "none"
	AwaitingConfirmation AwaitingKind = "confirmation"
	AwaitingBranch       AwaitingKind = "branch"
)

// ChatEvent is one emitted unit of conversation output.
type ChatEvent struct {
	// ID is unique within a session. It carries no ordering guarantee.
	ID     string `json:"id"`
	Origin Origin `json:"origin"`

	// Text may be empty (branch prompts only carry options).
	Text string `json:"text"`

	// CreatedAt is set by the client at normalization time, not by the backend.
	CreatedAt time.Time `json:"created_at"`

	AwaitingKind  AwaitingKind `json:"awaiting_kind,omitempty"`
	BranchOptions []string     `json:"branch_options,omitempty"`

	// SelectedOption is set exactly once, when the user resolves a branch event.
	SelectedOption string `json:"selected_option,omitempty"`
}

// IsBranch reports whether the event is a branch prompt.
func (e ChatEvent) IsBranch() bool {
	return e.AwaitingKind == AwaitingBranch
}

// Resolved reports whether a branch event already has a selection.
func (e ChatEvent) Resolved() bool {
	return e.SelectedOption != ""
}

// HasOption reports whether option is one of the event's branch options.
func (e ChatEvent) HasOption(option string) bool {
	for _, o := range e.BranchOptions {
		if o == option {
			return true
		}
	}
	return false
}
