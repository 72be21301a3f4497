package domain

// StateDiff represents the changes between two snapshots of a conversation.
// It is designed to be serialized to JSON for partial updates on the client.
type StateDiff struct {
	// ConversationID is filled by the host that owns the conversation key.
	ConversationID string `json:"conversation_id,omitempty"`

	SessionID *string      `json:"session_id,omitempty"`
	Paused    *PausedState `json:"paused,omitempty"`
	Finished  *bool        `json:"finished,omitempty"`

	// Appended contains the events added at the end of the log.
	Appended []ChatEvent `json:"appended,omitempty"`

	// Resolved contains pre-existing branch events whose selection changed.
	Resolved []ChatEvent `json:"resolved,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
func Diff(oldState, newState *SessionState) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{}

	if oldState == nil {
		if newState.SessionID != "" {
			diff.SessionID = &newState.SessionID
		}
		paused := newState.Paused
		diff.Paused = &paused
		if newState.Finished {
			diff.Finished = &newState.Finished
		}
		if len(newState.Events) > 0 {
			diff.Appended = newState.Events
		}
		return diff
	}

	if oldState.SessionID != newState.SessionID {
		diff.SessionID = &newState.SessionID
	}
	if oldState.Paused != newState.Paused {
		paused := newState.Paused
		diff.Paused = &paused
	}
	if oldState.Finished != newState.Finished {
		diff.Finished = &newState.Finished
	}

	diff.Appended, diff.Resolved = diffEvents(oldState.Events, newState.Events)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// diffEvents assumes the append-only event log.
func diffEvents(old, new []ChatEvent) (appended, resolved []ChatEvent) {
	shared := len(old)
	if len(new) < shared {
		shared = len(new)
	}
	for i := 0; i < shared; i++ {
		if old[i].SelectedOption != new[i].SelectedOption {
			resolved = append(resolved, new[i])
		}
	}
	if len(new) > len(old) {
		appended = new[len(old):]
	}
	return appended, resolved
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return d.SessionID == nil &&
		d.Paused == nil &&
		d.Finished == nil &&
		len(d.Appended) == 0 &&
		len(d.Resolved) == 0
}
