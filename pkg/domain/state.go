package domain

// PauseKind defines the kind of user response the paused flow expects.
type PauseKind string

const (
	PauseNone         PauseKind = "none"
	PauseQuestion     PauseKind = "question"
	PauseConfirmation PauseKind = "confirmation"
	PauseBranch       PauseKind = "branch"
)

// PausedState is the single outstanding input request, or none.
// A new flow step always fully replaces it.
type PausedState struct {
	Kind PauseKind `json:"kind"`
}

// IsPaused reports whether the flow waits for user input.
func (p PausedState) IsPaused() bool {
	return p.Kind != "" && p.Kind != PauseNone
}

// Mode is the derived interaction mode of a conversation.
type Mode string

const (
	ModeFlow Mode = "flow"
	ModeQnA  Mode = "qna"
)

// SessionState is the mutable root of a conversation.
type SessionState struct {
	// BotID identifies the bot the conversation talks to.
	BotID string `json:"bot_id"`

	// SessionID is assigned by the backend on a successful start.
	// Empty until then, required for every respond call.
	SessionID string `json:"session_id,omitempty"`

	// Events is append-only, except for the in-place SelectedOption mutation.
	Events []ChatEvent `json:"events"`

	Paused PausedState `json:"paused"`

	// Finished is monotonic: once true it never becomes false again.
	Finished bool `json:"finished"`

	// Started is set once a start has been attempted (successful or not).
	Started bool `json:"started"`

	// Sealed holds the encrypted form of the whole state when a store
	// encrypts at rest. All other content fields are empty in that case.
	Sealed string `json:"sealed,omitempty"`
}

// NewSessionState creates a clean, uninitialized state for a bot.
func NewSessionState(botID string) *SessionState {
	return &SessionState{
		BotID:  botID,
		Events: []ChatEvent{},
		Paused: PausedState{Kind: PauseNone},
	}
}

// Mode returns qna once the flow is finished, flow otherwise.
func (s *SessionState) Mode() Mode {
	if s.Finished {
		return ModeQnA
	}
	return ModeFlow
}

// HasSession reports whether the backend assigned a session id.
func (s *SessionState) HasSession() bool {
	return s.SessionID != ""
}

// FindEvent returns the index of the event with the given id, or -1.
func (s *SessionState) FindEvent(id string) int {
	for i := range s.Events {
		if s.Events[i].ID == id {
			return i
		}
	}
	return -1
}

// Snapshot returns a deep copy of the state.
func (s *SessionState) Snapshot() *SessionState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Events = make([]ChatEvent, len(s.Events))
	for i, e := range s.Events {
		if e.BranchOptions != nil {
			e.BranchOptions = append([]string(nil), e.BranchOptions...)
		}
		cp.Events[i] = e
	}
	return &cp
}
