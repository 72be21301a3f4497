package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/aretw0/flowchat/pkg/domain"
)

// Frame is one JSON line written by the JSONHandler.
type Frame struct {
	Events   []domain.ChatEvent `json:"events,omitempty"`
	Effects  []domain.Effect    `json:"effects,omitempty"`
	Mode     domain.Mode        `json:"mode,omitempty"`
	Paused   domain.PauseKind   `json:"paused,omitempty"`
	Finished bool               `json:"finished,omitempty"`
	System   string             `json:"system,omitempty"`
}

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
type JSONHandler struct {
	Reader  *bufio.Reader
	Writer  io.Writer
	Encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		Encoder: json.NewEncoder(w),
	}
}

// Output emits the outcome as a single JSON line.
func (h *JSONHandler) Output(ctx context.Context, out domain.Outcome, state *domain.SessionState) error {
	frame := Frame{
		Events:  out.Events,
		Effects: out.Effects,
	}
	if state != nil {
		frame.Mode = state.Mode()
		frame.Paused = state.Paused.Kind
		frame.Finished = state.Finished
	}
	return h.Encoder.Encode(frame)
}

// Input reads one line. It accepts a JSON string, an object with a "text"
// field, or plain text.
func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	line, err := h.Reader.ReadString('\n')
	if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
		return "", err
	}
	line = strings.TrimSpace(line)

	var text string
	var obj struct {
		Text string `json:"text"`
	}
	switch {
	case json.Unmarshal([]byte(line), &text) == nil:
	case json.Unmarshal([]byte(line), &obj) == nil:
		text = obj.Text
	default:
		text = line
	}
	return SanitizeInput(text)
}

// SystemOutput emits {"system": msg}.
func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.Encoder.Encode(Frame{System: msg})
}
