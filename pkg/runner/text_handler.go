package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/flowchat/pkg/domain"
)

// TextHandler implements the standard text-based interface.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// The pump reads lines in the background so that Input can honor ctx.
func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

func (h *TextHandler) pump() {
	for {
		text, err := h.Reader.ReadString('\n')
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err != nil {
			if err != io.EOF {
				h.inputChan <- inputResult{err: err}
			}
			close(h.inputChan)
			return
		}
	}
}

// Output prints bot events. User events are not echoed: the user typed them.
func (h *TextHandler) Output(ctx context.Context, out domain.Outcome, state *domain.SessionState) error {
	for _, ev := range out.Events {
		if ev.Origin == domain.OriginUser {
			continue
		}
		if ev.Text != "" {
			text := ev.Text
			if h.Renderer != nil {
				if rendered, err := h.Renderer(text); err == nil {
					text = rendered
				}
			}
			if ev.AwaitingKind == domain.AwaitingConfirmation {
				text = strings.TrimSpace(text) + " (yes/no)"
			}
			fmt.Fprintln(h.Writer, strings.TrimSpace(text))
		}
		if ev.IsBranch() {
			h.printOptions(ev)
		}
	}
	for _, eff := range out.Effects {
		if eff.Type == domain.EffectOpenURL {
			fmt.Fprintf(h.Writer, "Open: %s\n", eff.URL)
		}
	}
	return nil
}

func (h *TextHandler) printOptions(ev domain.ChatEvent) {
	if ev.Resolved() {
		fmt.Fprintf(h.Writer, "  -> %s\n", ev.SelectedOption)
		return
	}
	for i, opt := range ev.BranchOptions {
		fmt.Fprintf(h.Writer, "  %d) %s\n", i+1, opt)
	}
}

// Input prompts and waits for the next sanitized line.
func (h *TextHandler) Input(ctx context.Context) (string, error) {
	h.initPump()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
			fmt.Fprint(h.Writer, "> ")
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res, ok := <-h.inputChan:
			if !ok {
				return "", io.EOF
			}
			if res.err != nil {
				return "", res.err
			}
			clean, err := SanitizeInput(strings.TrimSpace(res.text))
			if err != nil {
				fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
				continue
			}
			return clean, nil
		}
	}
}

// SystemOutput prints a meta-message with a "[System]" prefix.
func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	fmt.Fprintf(h.Writer, "[System] %s\n", msg)
	return nil
}
