// Package mockbackend serves the flow backend wire contract from a YAML script.
// It backs `flowchat mock` and the integration tests of the transport and gateway.
package mockbackend

import (
	_ "embed"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/flowchat/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

//go:embed default.yaml
var defaultScript []byte

// DefaultScript returns the built-in demo script.
func DefaultScript() *Script {
	s, err := ParseScript(defaultScript)
	if err != nil {
		panic(err)
	}
	return s
}

type flowSession struct {
	botID    string
	step     string
	finished bool
}

// Server is an in-memory flow backend.
type Server struct {
	script *Script
	logger *slog.Logger
	newID  func() string

	mu       sync.Mutex
	sessions map[string]*flowSession
	failures map[string]int
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionIDs overrides session id generation.
func WithSessionIDs(gen func() string) Option {
	return func(s *Server) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// New creates a backend serving the script.
func New(script *Script, opts ...Option) *Server {
	s := &Server{
		script:   script,
		logger:   logging.NewNop(),
		newID:    uuid.NewString,
		sessions: make(map[string]*flowSession),
		failures: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Operations accepted by FailNext.
const (
	OpStart   = "start"
	OpRespond = "respond"
	OpAsk     = "ask"
)

// FailNext makes the next n calls of op answer with HTTP 500.
func (s *Server) FailNext(op string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] += n
}

func (s *Server) shouldFail(op string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[op] > 0 {
		s.failures[op]--
		return true
	}
	return false
}

// Sessions returns the number of sessions started so far.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/api/flow/start/{botId}", s.handleStart)
	r.Post("/api/flow/session/{sessionId}/respond", s.handleRespond)
	r.Post("/api/bots/ask", s.handleAsk)
	return r
}

type stepResponse struct {
	SessionID     string         `json:"sessionId,omitempty"`
	Messages      []Message      `json:"messages"`
	AwaitingInput map[string]any `json:"awaitingInput"`
	Finished      bool           `json:"finished"`
}

func render(step *Step) stepResponse {
	resp := stepResponse{
		Messages: step.Messages,
		Finished: step.Finished,
	}
	if resp.Messages == nil {
		resp.Messages = []Message{}
	}
	if step.Awaiting != "" && !step.Finished {
		resp.AwaitingInput = map[string]any{"type": step.Awaiting}
	}
	return resp
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botId")
	if s.shouldFail(OpStart) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "injected failure"})
		return
	}
	bot, ok := s.script.Bots[botID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "bot not found"})
		return
	}

	step := bot.Steps[bot.Start]
	sess := &flowSession{botID: botID, step: bot.Start, finished: step.Finished}
	id := s.newID()

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.logger.Info("Flow started", "bot_id", botID, "session_id", id, "step", bot.Start)
	resp := render(step)
	resp.SessionID = id
	writeJSON(w, http.StatusOK, resp)
}

type respondRequest struct {
	Input              *string `json:"input"`
	OptionIndexOrLabel *string `json:"optionIndexOrLabel"`
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if s.shouldFail(OpRespond) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "injected failure"})
		return
	}

	var body respondRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	var input string
	isOption := false
	switch {
	case body.OptionIndexOrLabel != nil:
		input, isOption = *body.OptionIndexOrLabel, true
	case body.Input != nil:
		input = *body.Input
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "input or optionIndexOrLabel is required"})
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	if sess.finished {
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]string{"error": "flow already finished"})
		return
	}
	bot := s.script.Bots[sess.botID]
	if to, ok := bot.next(sess.step, input, isOption); ok {
		sess.step = to
	}
	step := bot.Steps[sess.step]
	sess.finished = step.Finished
	current := sess.step
	s.mu.Unlock()

	s.logger.Info("Flow advanced", "session_id", sessionID, "step", current, "option", isOption)
	writeJSON(w, http.StatusOK, render(step))
}

type askRequest struct {
	Question string `json:"question"`
	BotID    string `json:"botId"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.shouldFail(OpAsk) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "injected failure"})
		return
	}

	var body askRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	bot, ok := s.script.Bots[body.BotID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "bot not found"})
		return
	}
	answer, ok := bot.answer(body.Question)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no answer found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"result": map[string]string{"answer": answer},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
