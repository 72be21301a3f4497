package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/flowchat/pkg/domain"
)

// Conversation is the state machine of one chat surface.
//
// The mutex guards the state only around mutations. It is never held across
// a transport call: optimistic changes are applied before the call and
// settle changes after it. A busy flag rejects every submission that arrives
// while a call is in flight.
type Conversation struct {
	engine *Engine

	mu       sync.Mutex
	state    *domain.SessionState
	busy     bool
	observer Observer
}

// Observer receives a copy of the state once the optimistic part of a
// submission is applied, before the transport call is issued.
type Observer func(ctx context.Context, pending *domain.SessionState)

// Observe registers fn as the conversation's observer, replacing any
// previous one. A nil fn removes it.
func (c *Conversation) Observe(fn Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = fn
}

// State returns a deep copy of the current state.
func (c *Conversation) State() *domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Snapshot()
}

// Busy reports whether a transport call is in flight.
func (c *Conversation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Ref identifies the conversation for hooks and logs.
func (c *Conversation) Ref() domain.ConversationRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refLocked()
}

// Start opens the flow. It can only be attempted once: a failed start leaves
// the conversation without a session and it cannot progress any further.
func (c *Conversation) Start(ctx context.Context) (domain.Outcome, error) {
	var botID string
	_, err := c.acquire(ctx, func(s *domain.SessionState) ([]domain.ChatEvent, error) {
		if s.Started {
			return nil, domain.ErrAlreadyStarted
		}
		s.Started = true
		botID = s.BotID
		return nil, nil
	})
	if err != nil {
		return domain.Outcome{}, err
	}
	defer c.release(ctx)

	var step *domain.FlowStep
	err = c.call(ctx, domain.OpStart, func(ctx context.Context) error {
		var callErr error
		step, callErr = c.engine.transport.StartFlow(ctx, botID)
		if callErr == nil && (step == nil || step.SessionID == "") {
			callErr = fmt.Errorf("%w: start response has no session id", domain.ErrProtocol)
		}
		return callErr
	})
	if err != nil {
		ev := c.fallback(ctx, domain.OpStart, err, c.engine.notices.StartFailed)
		return domain.Outcome{Events: []domain.ChatEvent{ev}}, nil
	}

	n := c.engine.normalizer().Normalize(step, c.engine.notices.FinishedOnStart)
	c.settle(ctx, func(s *domain.SessionState) []domain.ChatEvent {
		s.SessionID = step.SessionID
		applyStep(s, n)
		return n.Events
	})
	c.engine.logger.Debug("Conversation started",
		"bot_id", botID,
		"session_id", step.SessionID,
		"events", len(n.Events),
		"paused", n.Paused.Kind,
		"finished", n.Finished)

	c.engine.dispatch(ctx, c.Ref(), n.Effects)
	return domain.Outcome{Events: n.Events, Effects: n.Effects}, nil
}

// SubmitFreeText answers an open question of the flow, or asks the bot a
// question once the flow is finished.
func (c *Conversation) SubmitFreeText(ctx context.Context, text string) (domain.Outcome, error) {
	return c.submitText(ctx, text, false)
}

// SubmitConfirmation answers a confirmation prompt with yes or no.
// When no confirmation is pending the answer is handled as free text.
// The answer is sent to the backend as raw text.
func (c *Conversation) SubmitConfirmation(ctx context.Context, answer string) (domain.Outcome, error) {
	normalized := strings.ToLower(strings.TrimSpace(answer))
	if normalized != "yes" && normalized != "no" {
		c.reject(ctx, c.Ref(), domain.ErrInvalidAnswer)
		return domain.Outcome{}, domain.ErrInvalidAnswer
	}
	return c.submitText(ctx, normalized, true)
}

func (c *Conversation) submitText(ctx context.Context, text string, confirmation bool) (domain.Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		c.reject(ctx, c.Ref(), domain.ErrEmptyInput)
		return domain.Outcome{}, domain.ErrEmptyInput
	}

	var (
		qna       bool
		botID     string
		sessionID string
	)
	optimistic, err := c.acquire(ctx, func(s *domain.SessionState) ([]domain.ChatEvent, error) {
		if !s.HasSession() {
			return nil, domain.ErrNoSession
		}
		switch {
		case s.Finished:
			qna = true
		case s.Paused.Kind == domain.PauseQuestion:
		case confirmation && s.Paused.Kind == domain.PauseConfirmation:
		default:
			return nil, domain.ErrUnexpectedInput
		}
		botID, sessionID = s.BotID, s.SessionID
		s.Paused = domain.PausedState{Kind: domain.PauseNone}
		return []domain.ChatEvent{c.engine.normalizer().UserEvent(text)}, nil
	})
	if err != nil {
		return domain.Outcome{}, err
	}
	defer c.release(ctx)

	if qna {
		return c.ask(ctx, botID, text, optimistic), nil
	}
	return c.respond(ctx, sessionID, domain.TextInput(text), optimistic), nil
}

// SubmitBranchOption resolves a branch prompt of the current flow.
// The event is marked with the selection in place; no user event is added.
func (c *Conversation) SubmitBranchOption(ctx context.Context, eventID, option string) (domain.Outcome, error) {
	option = strings.TrimSpace(option)

	var sessionID string
	_, err := c.acquire(ctx, func(s *domain.SessionState) ([]domain.ChatEvent, error) {
		if !s.HasSession() {
			return nil, domain.ErrNoSession
		}
		if s.Finished {
			return nil, domain.ErrUnexpectedInput
		}
		idx := s.FindEvent(eventID)
		if idx < 0 {
			return nil, domain.ErrEventNotFound
		}
		ev := &s.Events[idx]
		if !ev.IsBranch() {
			return nil, domain.ErrNotBranch
		}
		if ev.Resolved() {
			return nil, domain.ErrOptionResolved
		}
		if option == "" || !ev.HasOption(option) {
			return nil, domain.ErrUnknownOption
		}
		ev.SelectedOption = option
		sessionID = s.SessionID
		s.Paused = domain.PausedState{Kind: domain.PauseNone}
		return nil, nil
	})
	if err != nil {
		return domain.Outcome{}, err
	}
	defer c.release(ctx)

	return c.respond(ctx, sessionID, domain.OptionInput(option), nil), nil
}

func (c *Conversation) respond(ctx context.Context, sessionID string, input domain.FlowInput, optimistic []domain.ChatEvent) domain.Outcome {
	var step *domain.FlowStep
	err := c.call(ctx, domain.OpRespond, func(ctx context.Context) error {
		var callErr error
		step, callErr = c.engine.transport.RespondFlow(ctx, sessionID, input)
		if callErr == nil && step == nil {
			callErr = fmt.Errorf("%w: empty respond result", domain.ErrProtocol)
		}
		return callErr
	})
	if err != nil {
		ev := c.fallback(ctx, domain.OpRespond, err, c.engine.notices.RespondFailed)
		return domain.Outcome{Events: append(optimistic, ev)}
	}

	n := c.engine.normalizer().Normalize(step, c.engine.notices.Finished)
	c.settle(ctx, func(s *domain.SessionState) []domain.ChatEvent {
		applyStep(s, n)
		return n.Events
	})

	c.engine.dispatch(ctx, c.Ref(), n.Effects)
	return domain.Outcome{Events: append(optimistic, n.Events...), Effects: n.Effects}
}

func (c *Conversation) ask(ctx context.Context, botID, question string, optimistic []domain.ChatEvent) domain.Outcome {
	var answer *domain.Answer
	err := c.call(ctx, domain.OpAsk, func(ctx context.Context) error {
		var callErr error
		answer, callErr = c.engine.transport.AskQuestion(ctx, botID, question)
		if callErr == nil && !answer.Succeeded() {
			callErr = fmt.Errorf("%w: unsuccessful answer", domain.ErrProtocol)
		}
		return callErr
	})
	if err != nil {
		ev := c.fallback(ctx, domain.OpAsk, err, c.engine.notices.AskFailed)
		return domain.Outcome{Events: append(optimistic, ev)}
	}

	ev := c.engine.normalizer().BotEvent(answer.Text())
	c.settle(ctx, func(s *domain.SessionState) []domain.ChatEvent {
		return []domain.ChatEvent{ev}
	})
	return domain.Outcome{Events: append(optimistic, ev)}
}

// applyStep replaces the paused state and latches finished.
func applyStep(s *domain.SessionState, n Normalized) {
	s.Paused = n.Paused
	if n.Finished {
		s.Finished = true
	}
}

// acquire validates and applies the optimistic part of a submission under
// the lock and marks the conversation busy. prepare must not mutate the
// state when it returns an error.
func (c *Conversation) acquire(ctx context.Context, prepare func(*domain.SessionState) ([]domain.ChatEvent, error)) ([]domain.ChatEvent, error) {
	c.mu.Lock()
	ref := c.refLocked()
	if c.busy {
		c.mu.Unlock()
		c.reject(ctx, ref, domain.ErrBusy)
		return nil, domain.ErrBusy
	}

	before := c.state.Paused
	events, err := prepare(c.state)
	if err != nil {
		c.mu.Unlock()
		c.reject(ctx, ref, err)
		return nil, err
	}
	c.state.Events = append(c.state.Events, events...)
	c.busy = true
	after := c.state.Paused
	observer := c.observer
	var pending *domain.SessionState
	if observer != nil {
		pending = c.state.Snapshot()
	}
	c.mu.Unlock()

	c.publish(ctx, ref, events, before, after)
	if h := c.engine.hooks.OnBusyChanged; h != nil {
		h(ctx, ref, true)
	}
	if observer != nil {
		observer(ctx, pending)
	}
	return events, nil
}

// release clears the busy flag. It runs deferred so every exit path,
// panics included, leaves the input enabled again.
func (c *Conversation) release(ctx context.Context) {
	c.mu.Lock()
	c.busy = false
	ref := c.refLocked()
	c.mu.Unlock()

	if h := c.engine.hooks.OnBusyChanged; h != nil {
		h(ctx, ref, false)
	}
}

// settle applies the result of a transport call under the lock.
func (c *Conversation) settle(ctx context.Context, apply func(*domain.SessionState) []domain.ChatEvent) {
	c.mu.Lock()
	before := c.state.Paused
	events := apply(c.state)
	c.state.Events = append(c.state.Events, events...)
	after := c.state.Paused
	ref := c.refLocked()
	c.mu.Unlock()

	c.publish(ctx, ref, events, before, after)
}

// fallback appends the apology event that replaces a failed call.
func (c *Conversation) fallback(ctx context.Context, op domain.Operation, err error, notice string) domain.ChatEvent {
	ev := c.engine.normalizer().BotEvent(notice)
	c.settle(ctx, func(*domain.SessionState) []domain.ChatEvent {
		return []domain.ChatEvent{ev}
	})

	ref := c.Ref()
	c.engine.logger.Warn("Transport call failed, appended fallback notice",
		"bot_id", ref.BotID,
		"session_id", ref.SessionID,
		"operation", op,
		"error", err)
	if h := c.engine.hooks.OnFallback; h != nil {
		h(ctx, ref, op, err)
	}
	return ev
}

// call runs one transport call outside the lock and reports it to the hooks.
func (c *Conversation) call(ctx context.Context, op domain.Operation, fn func(context.Context) error) error {
	start := c.engine.now()
	begin := time.Now()
	err := fn(ctx)

	if h := c.engine.hooks.OnTransportCall; h != nil {
		h(ctx, &domain.TransportEvent{
			ConversationRef: c.Ref(),
			Timestamp:       start,
			Operation:       op,
			Duration:        time.Since(begin),
			Err:             err,
		})
	}
	return err
}

func (c *Conversation) reject(ctx context.Context, ref domain.ConversationRef, err error) {
	c.engine.logger.Debug("Submission rejected",
		"bot_id", ref.BotID,
		"session_id", ref.SessionID,
		"error", err)
	if h := c.engine.hooks.OnRejected; h != nil {
		h(ctx, ref, err)
	}
}

func (c *Conversation) publish(ctx context.Context, ref domain.ConversationRef, events []domain.ChatEvent, before, after domain.PausedState) {
	if h := c.engine.hooks.OnEventAppended; h != nil {
		for _, ev := range events {
			h(ctx, ref, ev)
		}
	}
	if before != after {
		if h := c.engine.hooks.OnPausedChanged; h != nil {
			h(ctx, ref, after)
		}
	}
}

func (c *Conversation) refLocked() domain.ConversationRef {
	return domain.ConversationRef{BotID: c.state.BotID, SessionID: c.state.SessionID}
}
