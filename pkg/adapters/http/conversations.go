package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aretw0/flowchat/internal/runtime"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/runner"
	"github.com/go-chi/chi/v5"
)

type createRequest struct {
	BotID string `json:"bot_id"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type confirmationRequest struct {
	Answer string `json:"answer"`
}

type optionRequest struct {
	EventID string `json:"event_id"`
	Option  string `json:"option"`
}

// ConversationResponse is the body of every conversation endpoint.
// Events and Effects are what the call itself produced.
type ConversationResponse struct {
	ID      string               `json:"id"`
	Mode    domain.Mode          `json:"mode"`
	State   *domain.SessionState `json:"state"`
	Events  []domain.ChatEvent   `json:"events,omitempty"`
	Effects []domain.Effect      `json:"effects,omitempty"`
}

func newResponse(id string, state *domain.SessionState, out domain.Outcome) ConversationResponse {
	return ConversationResponse{
		ID:      id,
		Mode:    state.Mode(),
		State:   state,
		Events:  out.Events,
		Effects: out.Effects,
	}
}

// ListConversations handles GET /conversations.
func (s *Server) ListConversations(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Sessions.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"conversations": ids})
}

// CreateConversation handles POST /conversations: it creates a conversation
// and starts its flow.
func (s *Server) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}
	if body.BotID == "" {
		body.BotID = s.defaultBotID
	}
	if body.BotID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bot_id is required"})
		return
	}

	id := s.newID()
	conv := s.Engine.NewConversation(body.BotID)
	if err := s.Sessions.Create(r.Context(), id, conv.State()); err != nil {
		s.writeError(w, err)
		return
	}

	var resp ConversationResponse
	err := s.run(r.Context(), id, func(ctx context.Context, conv *runtime.Conversation) (domain.Outcome, error) {
		return conv.Start(ctx)
	}, &resp)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("Conversation created", "conversation_id", id, "bot_id", body.BotID, "session_id", resp.State.SessionID)
	writeJSON(w, http.StatusCreated, resp)
}

// GetConversation handles GET /conversations/{id}.
func (s *Server) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := s.Sessions.Load(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newResponse(id, state, domain.Outcome{}))
}

// DeleteConversation handles DELETE /conversations/{id}.
// The backend has no teardown call; only the local record is removed.
func (s *Server) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Sessions.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitMessage handles POST /conversations/{id}/messages.
func (s *Server) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	var body messageRequest
	if !s.decode(w, r, &body) {
		return
	}
	text, err := runner.SanitizeInput(body.Text)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid input: %v", err)})
		return
	}

	s.submit(w, r, func(ctx context.Context, conv *runtime.Conversation) (domain.Outcome, error) {
		return conv.SubmitFreeText(ctx, text)
	})
}

// SubmitConfirmation handles POST /conversations/{id}/confirmation.
func (s *Server) SubmitConfirmation(w http.ResponseWriter, r *http.Request) {
	var body confirmationRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.submit(w, r, func(ctx context.Context, conv *runtime.Conversation) (domain.Outcome, error) {
		return conv.SubmitConfirmation(ctx, body.Answer)
	})
}

// SelectOption handles POST /conversations/{id}/options.
func (s *Server) SelectOption(w http.ResponseWriter, r *http.Request) {
	var body optionRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.submit(w, r, func(ctx context.Context, conv *runtime.Conversation) (domain.Outcome, error) {
		return conv.SubmitBranchOption(ctx, body.EventID, body.Option)
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

type submitFunc func(ctx context.Context, conv *runtime.Conversation) (domain.Outcome, error)

func (s *Server) submit(w http.ResponseWriter, r *http.Request, fn submitFunc) {
	id := chi.URLParam(r, "id")

	var resp ConversationResponse
	err := s.run(r.Context(), id, fn, &resp)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// run executes one transition under the conversation's try-lock: load,
// resume, transition, save, broadcast the diff. A held lock yields ErrBusy.
// The optimistic state is saved and broadcast before the backend call, so
// readers and subscribers see the user's input while the call is in flight.
// The transition outlives a disconnecting client so that the stored state
// always reflects the backend call's outcome.
func (s *Server) run(reqCtx context.Context, id string, fn submitFunc, resp *ConversationResponse) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), s.callTimeout)
	defer cancel()

	err := s.Sessions.TryWithLock(ctx, id, func(ctx context.Context) error {
		store := s.Sessions.Store()
		before, err := store.Load(ctx, id)
		if err != nil {
			return err
		}
		conv, err := s.Engine.ResumeConversation(before)
		if err != nil {
			return err
		}

		last := before
		conv.Observe(func(ctx context.Context, pending *domain.SessionState) {
			if err := store.Save(ctx, id, pending); err != nil {
				s.logger.Warn("Failed to save pending conversation", "conversation_id", id, "error", err)
				return
			}
			s.broadcastDiff(id, last, pending)
			last = pending
		})

		out, err := fn(ctx, conv)
		if err != nil {
			return err
		}

		after := conv.State()
		if err := store.Save(ctx, id, after); err != nil {
			return fmt.Errorf("failed to save conversation: %w", err)
		}
		s.broadcastDiff(id, last, after)
		*resp = newResponse(id, after, out)
		return nil
	})
	if errors.Is(err, domain.ErrBusy) && s.metrics != nil {
		s.metrics.RecordRejection(err)
	}
	return err
}

func (s *Server) broadcastDiff(id string, before, after *domain.SessionState) {
	diff := domain.Diff(before, after)
	if diff == nil {
		return
	}
	diff.ConversationID = id
	payload, err := json.Marshal(diff)
	if err != nil {
		s.logger.Error("Failed to encode diff", "conversation_id", id, "error", err)
		return
	}
	s.Streams.Broadcast(id, string(payload))
}
