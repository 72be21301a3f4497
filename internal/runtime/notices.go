package runtime

// Notices holds the fixed bot texts the machine synthesizes.
type Notices struct {
	// FinishedOnStart closes a flow whose very first response is already finished.
	FinishedOnStart string
	// Finished closes a flow that finished after a later step.
	Finished string
	// StartFailed replaces the greeting when the flow could not be started.
	StartFailed string
	// RespondFailed is appended when a flow step could not be delivered.
	RespondFailed string
	// AskFailed is appended when a Q&A question got no usable answer.
	AskFailed string
}

// DefaultNotices returns the built-in texts.
func DefaultNotices() Notices {
	return Notices{
		FinishedOnStart: "This conversation has already been completed. Feel free to ask me anything!",
		Finished:        "Thanks! We're all done here. You can keep asking me questions at any time.",
		StartFailed:     "Sorry, I couldn't start the conversation right now. Please try again later.",
		RespondFailed:   "Sorry, I'm having trouble connecting right now. Please try again in a moment.",
		AskFailed:       "Sorry, I couldn't find an answer to that. Please try asking in a different way.",
	}
}

func (n Notices) merge(o Notices) Notices {
	pick := func(cur, override string) string {
		if override != "" {
			return override
		}
		return cur
	}
	return Notices{
		FinishedOnStart: pick(n.FinishedOnStart, o.FinishedOnStart),
		Finished:        pick(n.Finished, o.Finished),
		StartFailed:     pick(n.StartFailed, o.StartFailed),
		RespondFailed:   pick(n.RespondFailed, o.RespondFailed),
		AskFailed:       pick(n.AskFailed, o.AskFailed),
	}
}
