package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/flowchat"
	"github.com/aretw0/flowchat/internal/config"
	"github.com/aretw0/flowchat/internal/logging"
	"github.com/aretw0/flowchat/internal/presentation/tui"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/aretw0/flowchat/pkg/runner"
	"golang.org/x/term"
)

// ChatOptions contains all the configuration for the chat command.
type ChatOptions struct {
	Config         *config.Config
	BotID          string
	ConversationID string
	Fresh          bool
	JSON           bool
	Debug          bool

	// In and Out default to the process stdin/stdout.
	In  io.Reader
	Out io.Writer
}

// ExecuteChat runs one terminal conversation until the user leaves or the
// process is interrupted.
func ExecuteChat(opts ChatOptions) error {
	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	finished, err := RunChat(sigCtx, opts)
	if !opts.JSON {
		logCompletion(opts.out(), opts.ConversationID, finished, err, sigCtx.Signal())
	}
	return handleExecutionError(err)
}

// RunChat drives the conversation on ctx and reports whether the flow
// finished.
func RunChat(ctx context.Context, opts ChatOptions) (bool, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	botID := opts.BotID
	if botID == "" {
		botID = cfg.Backend.BotID
	}

	logger := logging.NewNop()
	if opts.Debug {
		var err error
		if logger, err = NewLogger(cfg.Log, true); err != nil {
			return false, err
		}
	}

	engine, err := NewEngine(cfg.Backend, logger, opts.Debug)
	if err != nil {
		return false, err
	}

	var store ports.StateStore
	if opts.ConversationID != "" {
		p, err := NewPersistence(ctx, cfg.Store, logger)
		if err != nil {
			return false, err
		}
		defer p.Close()
		store = p.Store
	}

	conv, resumed, err := openConversation(ctx, engine, store, opts.ConversationID, botID, opts.Fresh)
	if err != nil {
		return false, err
	}
	logger.Info("Conversation opened", "conversation_id", opts.ConversationID, "bot_id", botID, "resumed", resumed)

	out := opts.out()
	runnerOpts := []runner.Option{runner.WithLogger(logger)}
	if store != nil {
		runnerOpts = append(runnerOpts, runner.WithStore(store, opts.ConversationID))
	}
	if opts.JSON {
		runnerOpts = append(runnerOpts, runner.WithInputHandler(runner.NewJSONHandler(opts.in(), out)))
	} else {
		var textOpts []runner.TextHandlerOption
		if width, ok := terminalWidth(out); ok {
			textOpts = append(textOpts, runner.WithTextHandlerRenderer(tui.NewRenderer(width)))
		}
		tui.PrintBanner(out, botID, flowchat.Version)
		if resumed {
			printSystemMessage(out, "Resuming conversation '%s'...", opts.ConversationID)
		}
		runnerOpts = append(runnerOpts, runner.WithInputHandler(runner.NewTextHandler(opts.in(), out, textOpts...)))
	}

	r := runner.NewRunner(runnerOpts...)
	runErr := r.Run(ctx, conv)
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	return conv.State().Finished, runErr
}

// openConversation resumes the stored conversation id, or creates a new one.
func openConversation(ctx context.Context, engine *flowchat.Engine, store ports.StateStore, id, botID string, fresh bool) (*flowchat.Conversation, bool, error) {
	if store == nil {
		return engine.NewConversation(botID), false, nil
	}
	if fresh {
		if err := store.Delete(ctx, id); err != nil {
			return nil, false, fmt.Errorf("reset conversation %s: %w", id, err)
		}
	}
	state, err := store.Load(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return engine.NewConversation(botID), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load conversation %s: %w", id, err)
	}
	conv, err := engine.ResumeConversation(state)
	if err != nil {
		return nil, false, fmt.Errorf("resume conversation %s: %w", id, err)
	}
	return conv, true, nil
}

// terminalWidth reports the width of w when it is an interactive terminal.
func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 80, true
	}
	return width, true
}

func (o ChatOptions) in() io.Reader {
	if o.In == nil {
		return os.Stdin
	}
	return o.In
}

func (o ChatOptions) out() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}
