package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// wireStep mirrors the start/respond envelope with every field optional.
type wireStep struct {
	SessionID     string `mapstructure:"sessionId"`
	Messages      []any  `mapstructure:"messages"`
	AwaitingInput any    `mapstructure:"awaitingInput"`
	Finished      bool   `mapstructure:"finished"`
}

type wireAnswer struct {
	Status string `mapstructure:"status"`
	Result any    `mapstructure:"result"`
	Error  any    `mapstructure:"error"`
}

func weakDecode(input, output any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           output,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// DecodeStep converts a decoded JSON envelope into a FlowStep.
// Malformed messages degrade to plain messages instead of failing the step.
func DecodeStep(raw map[string]any) (*domain.FlowStep, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty flow response", domain.ErrProtocol)
	}

	var w wireStep
	if err := weakDecode(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: decode flow response: %w", domain.ErrProtocol, err)
	}

	step := &domain.FlowStep{
		SessionID:     w.SessionID,
		Messages:      make([]domain.RawMessage, 0, len(w.Messages)),
		AwaitingInput: decodeAwait(w.AwaitingInput),
		Finished:      w.Finished,
	}
	for _, m := range w.Messages {
		if msg, ok := decodeMessage(m); ok {
			step.Messages = append(step.Messages, msg)
		}
	}
	return step, nil
}

func decodeMessage(v any) (domain.RawMessage, bool) {
	switch m := v.(type) {
	case nil:
		return domain.RawMessage{}, false
	case string:
		return domain.RawMessage{Content: m}, true
	case map[string]any:
		var msg domain.RawMessage
		if err := weakDecode(m, &msg); err == nil {
			return msg, true
		}
		// Field by field: a malformed field only loses itself.
		msg = domain.RawMessage{}
		_ = weakDecode(m["type"], &msg.Type)
		_ = weakDecode(m["content"], &msg.Content)
		_ = weakDecode(m["message"], &msg.Message)
		msg.AwaitingInput = looseBool(m["awaitingInput"])
		msg.Options = looseStrings(m["options"])
		return msg, true
	default:
		return domain.RawMessage{Content: fmt.Sprint(m)}, true
	}
}

func decodeAwait(v any) *domain.AwaitDescriptor {
	switch a := v.(type) {
	case nil:
		return nil
	case bool:
		if !a {
			return nil
		}
		return &domain.AwaitDescriptor{}
	case string:
		return &domain.AwaitDescriptor{Type: a}
	case map[string]any:
		var d domain.AwaitDescriptor
		_ = weakDecode(a, &d)
		return &d
	default:
		return &domain.AwaitDescriptor{}
	}
}

func looseBool(v any) bool {
	var b bool
	if err := weakDecode(v, &b); err == nil {
		return b
	}
	s, _ := v.(string)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "on":
		return true
	}
	return false
}

// looseStrings keeps the entries of a list that read as strings.
func looseStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		var s string
		if item == nil || weakDecode(item, &s) != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

// DecodeAnswer converts a decoded Q&A response into an Answer.
func DecodeAnswer(raw map[string]any) (*domain.Answer, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty answer response", domain.ErrProtocol)
	}

	var w wireAnswer
	if err := weakDecode(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: decode answer: %w", domain.ErrProtocol, err)
	}

	answer := &domain.Answer{Status: w.Status, Error: errorText(w.Error)}
	switch r := w.Result.(type) {
	case map[string]any:
		var res domain.AnswerResult
		if err := weakDecode(r, &res); err == nil {
			answer.Result = &res
		}
	case string:
		answer.Result = &domain.AnswerResult{Answer: r}
	}
	return answer, nil
}

func errorText(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return e
	case bool:
		if e {
			return "error"
		}
		return ""
	default:
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Sprint(e)
		}
		return string(b)
	}
}

// EncodeInput builds the respond body: {"input": text} or {"optionIndexOrLabel": option}.
func EncodeInput(in domain.FlowInput) map[string]string {
	if in.IsOption {
		return map[string]string{"optionIndexOrLabel": in.OptionSelector}
	}
	return map[string]string{"input": in.RawText}
}
