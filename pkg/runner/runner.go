package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/aretw0/flowchat/internal/logging"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/ports"
)

// Conversation is the part of the state machine the loop drives.
type Conversation interface {
	State() *domain.SessionState
	Start(ctx context.Context) (domain.Outcome, error)
	SubmitFreeText(ctx context.Context, text string) (domain.Outcome, error)
	SubmitConfirmation(ctx context.Context, answer string) (domain.Outcome, error)
	SubmitBranchOption(ctx context.Context, eventID, option string) (domain.Outcome, error)
}

// Runner handles the chat loop of one conversation using provided IO.
type Runner struct {
	// Handler is the strategy for IO. If nil, a text or JSON handler on
	// stdin/stdout is created depending on Headless.
	Handler IOHandler

	Logger *slog.Logger

	// Store and ConversationID enable persistence. If Store is nil, the
	// conversation is ephemeral.
	Store          ports.StateStore
	ConversationID string

	Headless bool
	Renderer ContentRenderer
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		Logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Messages shown when a line does not fit the flow.
const (
	HintPickOption  = "Please pick one of the numbered options."
	HintAnswerYesNo = "Please answer yes or no."
	HintWaitForBot  = "Still waiting for the previous answer."
	NoticeStalled   = "The flow is not waiting for any input."
	NoticeNoSession = "The conversation could not be started."
)

// Run starts conv (or replays it if it was already started) and loops until
// the input ends, the user types exit/quit, ctx is cancelled or the flow
// stops waiting for input.
func (r *Runner) Run(ctx context.Context, conv Conversation) error {
	handler := r.resolveHandler()

	state := conv.State()
	if !state.Started {
		out, err := conv.Start(ctx)
		if err != nil {
			return fmt.Errorf("failed to start conversation: %w", err)
		}
		if err := r.emit(ctx, handler, conv, out); err != nil {
			return err
		}
	} else if err := handler.Output(ctx, domain.Outcome{Events: state.Events}, state); err != nil {
		return fmt.Errorf("output error: %w", err)
	}

	signals := NewSignalManager(ctx)
	defer signals.Stop()

	for {
		state = conv.State()
		if !state.Finished && !state.Paused.IsPaused() {
			notice := NoticeStalled
			if !state.HasSession() {
				notice = NoticeNoSession
			}
			return handler.SystemOutput(ctx, notice)
		}

		line, err := handler.Input(signals.Context())
		if err != nil {
			signals.CheckRace()
			if signals.Context().Err() != nil {
				r.Logger.Debug("Runner input: Context cancelled", "err", signals.Context().Err())
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		out, err := r.submit(ctx, conv, state, line)
		if err != nil {
			if domain.IsValidation(err) {
				r.Logger.Debug("Runner input: Rejected", "err", err)
				if err := handler.SystemOutput(ctx, hint(err)); err != nil {
					return err
				}
				continue
			}
			return err
		}
		if err := r.emit(ctx, handler, conv, out); err != nil {
			return err
		}
	}
}

func (r *Runner) emit(ctx context.Context, handler IOHandler, conv Conversation, out domain.Outcome) error {
	state := conv.State()
	if err := handler.Output(ctx, out, state); err != nil {
		return fmt.Errorf("output error: %w", err)
	}
	return r.saveState(ctx, state)
}

func (r *Runner) saveState(ctx context.Context, state *domain.SessionState) error {
	if r.Store == nil || r.ConversationID == "" {
		return nil
	}
	if err := r.Store.Save(context.WithoutCancel(ctx), r.ConversationID, state); err != nil {
		return fmt.Errorf("critical persistence error: %w", err)
	}
	r.Logger.Debug("state saved", "conversation_id", r.ConversationID, "events", len(state.Events))
	return nil
}

// submit maps a line to the submission the current pause expects.
func (r *Runner) submit(ctx context.Context, conv Conversation, state *domain.SessionState, line string) (domain.Outcome, error) {
	if state.Finished {
		return conv.SubmitFreeText(ctx, line)
	}
	switch state.Paused.Kind {
	case domain.PauseBranch:
		ev, ok := PendingBranch(state)
		if !ok {
			return conv.SubmitFreeText(ctx, line)
		}
		option, ok := ResolveOption(ev, line)
		if !ok {
			return domain.Outcome{}, domain.ErrUnknownOption
		}
		return conv.SubmitBranchOption(ctx, ev.ID, option)
	case domain.PauseConfirmation:
		answer, ok := ParseYesNo(line)
		if !ok {
			return domain.Outcome{}, domain.ErrInvalidAnswer
		}
		return conv.SubmitConfirmation(ctx, answer)
	default:
		return conv.SubmitFreeText(ctx, line)
	}
}

// PendingBranch returns the latest unresolved branch event.
func PendingBranch(state *domain.SessionState) (domain.ChatEvent, bool) {
	for i := len(state.Events) - 1; i >= 0; i-- {
		ev := state.Events[i]
		if ev.IsBranch() && !ev.Resolved() {
			return ev, true
		}
	}
	return domain.ChatEvent{}, false
}

// ResolveOption accepts a 1-based option number or a case-insensitive label.
func ResolveOption(ev domain.ChatEvent, line string) (string, bool) {
	if n, err := strconv.Atoi(line); err == nil {
		if n >= 1 && n <= len(ev.BranchOptions) {
			return ev.BranchOptions[n-1], true
		}
		return "", false
	}
	for _, opt := range ev.BranchOptions {
		if strings.EqualFold(opt, line) {
			return opt, true
		}
	}
	return "", false
}

// ParseYesNo accepts yes/y and no/n in any case.
func ParseYesNo(line string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "yes", "y":
		return "yes", true
	case "no", "n":
		return "no", true
	}
	return "", false
}

func hint(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnknownOption):
		return HintPickOption
	case errors.Is(err, domain.ErrInvalidAnswer):
		return HintAnswerYesNo
	case errors.Is(err, domain.ErrBusy):
		return HintWaitForBot
	default:
		return err.Error()
	}
}

func (r *Runner) resolveHandler() IOHandler {
	if r.Handler != nil {
		return r.Handler
	}
	if r.Headless {
		r.Handler = NewJSONHandler(os.Stdin, os.Stdout)
	} else {
		r.Handler = NewTextHandler(os.Stdin, os.Stdout, WithTextHandlerRenderer(r.Renderer))
	}
	return r.Handler
}
