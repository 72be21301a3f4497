// Package http exposes conversations over a JSON/SSE gateway for browser surfaces.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/flowchat"
	"github.com/aretw0/flowchat/internal/logging"
	"github.com/aretw0/flowchat/internal/runtime"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/observability"
	"github.com/aretw0/flowchat/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Engine creates and resumes conversations.
type Engine interface {
	NewConversation(botID string) *runtime.Conversation
	ResumeConversation(state *domain.SessionState) (*runtime.Conversation, error)
}

// Server holds the gateway dependencies.
type Server struct {
	Engine   Engine
	Sessions *session.Manager
	Streams  *StreamManager
	Relay    *CustomizationRelay

	metrics      *observability.Metrics
	logger       *slog.Logger
	newID        func() string
	defaultBotID string
	callTimeout  time.Duration
}

// Option configures the Server.
type Option func(*Server)

// WithMetrics serves the collectors on /metrics and counts lock rejections.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator overrides conversation id generation (UUIDv4 by default).
func WithIDGenerator(gen func() string) Option {
	return func(s *Server) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithDefaultBotID is used when a create request names no bot.
func WithDefaultBotID(botID string) Option {
	return func(s *Server) {
		s.defaultBotID = botID
	}
}

// WithCallTimeout bounds the work done for one submission, backend call included.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// NewServer creates a gateway server.
func NewServer(engine Engine, sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		Engine:      engine,
		Sessions:    sessions,
		Streams:     NewStreamManager(),
		Relay:       NewCustomizationRelay(),
		logger:      logging.NewNop(),
		newID:       uuid.NewString,
		callTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams.logger = s.logger
	s.Relay.logger = s.logger
	return s
}

// NewHandler creates a new HTTP handler for the gateway.
func NewHandler(engine Engine, sessions *session.Manager, opts ...Option) http.Handler {
	return NewServer(engine, sessions, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", s.ListConversations)
		r.Post("/", s.CreateConversation)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetConversation)
			r.Delete("/", s.DeleteConversation)
			r.Post("/messages", s.SubmitMessage)
			r.Post("/confirmation", s.SubmitConfirmation)
			r.Post("/options", s.SelectOption)
			r.Get("/events", s.SubscribeEvents)
		})
	})

	r.Route("/embed/{botId}/customization", func(r chi.Router) {
		r.Post("/", s.PublishCustomization)
		r.Get("/ws", s.CustomizationSocket)
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		}
		switch {
		case ww.Status() >= 500:
			s.logger.Error("Request failed", attrs...)
		case ww.Status() >= 400:
			s.logger.Warn("Request rejected", attrs...)
		default:
			s.logger.Debug("Request served", attrs...)
		}
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "flowchat-gateway",
		"version": strings.TrimSpace(flowchat.Version),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
