package domain

// Backend message types with special handling. Any other value is a plain text message.
const (
	MessageTypeRedirect     = "redirect"
	MessageTypeBranch       = "branch"
	MessageTypeConfirmation = "confirmation"
)

// RawMessage is one decoded backend message. Every field may be absent.
type RawMessage struct {
	Type          string   `json:"type,omitempty" mapstructure:"type"`
	Content       string   `json:"content,omitempty" mapstructure:"content"`
	Message       string   `json:"message,omitempty" mapstructure:"message"`
	AwaitingInput bool     `json:"awaitingInput,omitempty" mapstructure:"awaitingInput"`
	Options       []string `json:"options,omitempty" mapstructure:"options"`
}

// AwaitDescriptor is the envelope-level indicator of what the paused step expects.
type AwaitDescriptor struct {
	Type string `json:"type" mapstructure:"type"`
}

// FlowStep is the shared shape of start and respond results.
type FlowStep struct {
	// SessionID is only present on start results.
	SessionID     string           `json:"sessionId,omitempty"`
	Messages      []RawMessage     `json:"messages"`
	AwaitingInput *AwaitDescriptor `json:"awaitingInput"`
	Finished      bool             `json:"finished"`
}

// FlowInput is the body of a respond call: either raw text or an option selector.
type FlowInput struct {
	RawText        string
	OptionSelector string
	IsOption       bool
}

// TextInput builds a raw-text flow input.
func TextInput(text string) FlowInput {
	return FlowInput{RawText: text}
}

// OptionInput builds an option-selector flow input.
func OptionInput(option string) FlowInput {
	return FlowInput{OptionSelector: option, IsOption: true}
}

// AnswerResult carries the answer text of a successful Q&A call.
type AnswerResult struct {
	Answer string `json:"answer"`
}

// Answer is the decoded result of a Q&A question.
type Answer struct {
	Status string        `json:"status,omitempty"`
	Result *AnswerResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Text returns the answer text, or "" if absent.
func (a *Answer) Text() string {
	if a == nil || a.Result == nil {
		return ""
	}
	return a.Result.Answer
}

// Succeeded reports whether the answer is usable.
func (a *Answer) Succeeded() bool {
	if a == nil || a.Error != "" {
		return false
	}
	if a.Status != "" && a.Status != "success" {
		return false
	}
	return a.Text() != ""
}
