package domain

// EffectType names a side-effect the host must perform.
type EffectType string

const (
	// EffectOpenURL requests the host to open a URL in a new browsing context.
	// Payload: the target URL.
	EffectOpenURL EffectType = "OPEN_URL"
)

// Effect represents a side-effect the conversation requests from its host.
// The core never performs it itself.
type Effect struct {
	Type EffectType `json:"type"`
	URL  string     `json:"url,omitempty"`
}

// Outcome is what a single transition emitted.
type Outcome struct {
	Events  []ChatEvent `json:"events"`
	Effects []Effect    `json:"effects,omitempty"`
}
