// Package mcp exposes conversations as Model Context Protocol tools so that
// agents can drive a flow the same way a chat surface does.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/flowchat"
	"github.com/aretw0/flowchat/internal/logging"
	"github.com/aretw0/flowchat/internal/runtime"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/runner"
	"github.com/aretw0/flowchat/pkg/session"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ConversationResult is the structured result of every conversation tool.
type ConversationResult struct {
	ConversationID string               `json:"conversation_id" jsonschema_description:"Handle to pass to the other conversation tools"`
	Mode           domain.Mode          `json:"mode" jsonschema_description:"flow while the scripted flow runs, qna once it is finished"`
	Paused         domain.PauseKind     `json:"paused" jsonschema_description:"What the flow waits for: none, question, confirmation or branch"`
	Events         []domain.ChatEvent   `json:"events" jsonschema_description:"Events produced by this call"`
	Effects        []domain.Effect      `json:"effects,omitempty" jsonschema_description:"Side-effects requested by the bot, such as opening a URL"`
	State          *domain.SessionState `json:"state,omitempty" jsonschema_description:"Full conversation state"`
}

// Engine creates and resumes conversations.
type Engine interface {
	NewConversation(botID string) *runtime.Conversation
	ResumeConversation(state *domain.SessionState) (*runtime.Conversation, error)
}

// StartArgs are the arguments of start_conversation.
type StartArgs struct {
	BotID string `json:"bot_id"`
}

// MessageArgs are the arguments of send_message.
type MessageArgs struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// ConfirmationArgs are the arguments of answer_confirmation.
type ConfirmationArgs struct {
	ConversationID string `json:"conversation_id"`
	Answer         string `json:"answer"`
}

// OptionArgs are the arguments of select_option.
type OptionArgs struct {
	ConversationID string `json:"conversation_id"`
	EventID        string `json:"event_id"`
	Option         string `json:"option"`
}

// GetArgs are the arguments of get_conversation.
type GetArgs struct {
	ConversationID string `json:"conversation_id"`
}

// Server wraps the engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	sessions  *session.Manager
	mcpServer *server.MCPServer
	logger    *slog.Logger
	newID     func() string

	callTimeout time.Duration
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

// WithIDGenerator overrides conversation id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Server) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithCallTimeout bounds each tool transition, backend call included.
// Transitions do not stop when the calling client goes away.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		sessions:  sessions,
		mcpServer: server.NewMCPServer("flowchat-mcp", strings.TrimSpace(flowchat.Version)),
		logger:    logging.NewNop(),
		newID:     uuid.NewString,

		callTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr string, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("start_conversation",
		mcp.WithDescription("Start a scripted conversation with a bot. Returns the greeting events and what the flow waits for."),
		mcp.WithString("bot_id", mcp.Required(), mcp.Description("The bot to talk to")),
		mcp.WithOutputSchema[ConversationResult](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Answer an open question of the flow, or ask the bot a question once the flow is finished."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation handle from start_conversation")),
		mcp.WithString("text", mcp.Required(), mcp.Description("The message text")),
		mcp.WithOutputSchema[ConversationResult](),
	), mcp.NewStructuredToolHandler(s.handleSendMessage))

	s.mcpServer.AddTool(mcp.NewTool("answer_confirmation",
		mcp.WithDescription("Answer a pending confirmation prompt."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation handle from start_conversation")),
		mcp.WithString("answer", mcp.Required(), mcp.Enum("yes", "no"), mcp.Description("yes or no")),
		mcp.WithOutputSchema[ConversationResult](),
	), mcp.NewStructuredToolHandler(s.handleConfirmation))

	s.mcpServer.AddTool(mcp.NewTool("select_option",
		mcp.WithDescription("Select one option of a branch prompt. Each branch can be resolved once."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation handle from start_conversation")),
		mcp.WithString("event_id", mcp.Required(), mcp.Description("ID of the branch event")),
		mcp.WithString("option", mcp.Required(), mcp.Description("One of the event's branch_options")),
		mcp.WithOutputSchema[ConversationResult](),
	), mcp.NewStructuredToolHandler(s.handleSelectOption))

	s.mcpServer.AddTool(mcp.NewTool("get_conversation",
		mcp.WithDescription("Get the full state of a conversation."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation handle from start_conversation")),
		mcp.WithOutputSchema[ConversationResult](),
	), mcp.NewStructuredToolHandler(s.handleGet))
}

func (s *Server) handleStart(ctx context.Context, _ mcp.CallToolRequest, args StartArgs) (ConversationResult, error) {
	if strings.TrimSpace(args.BotID) == "" {
		return ConversationResult{}, errors.New("bot_id is required")
	}

	id := s.newID()
	conv := s.engine.NewConversation(args.BotID)
	if err := s.sessions.Create(ctx, id, conv.State()); err != nil {
		return ConversationResult{}, err
	}

	res, err := s.transition(ctx, id, func(ctx context.Context, conv *runtime.Conversation) (domain.Outcome, error) {
		return conv.Start(ctx)
	})
	if err != nil {
		return ConversationResult{}, err
	}
	s.logger.Info("MCP: Conversation started", "conversation_id", id, "bot_id", args.BotID)
	return res, nil
}

func (s *Server) handleSendMessage(ctx context.Context, _ mcp.CallToolRequest, args MessageArgs) (ConversationResult, error) {
	text, err := runner.SanitizeInput(args.Text)
	if err != nil {
		s.logger.Warn("MCP: Input rejected", "error", err, "size", len(args.Text))
		return ConversationResult{}, fmt.Errorf("input rejected: %w", err)
	}
	return s.transition(ctx, args.ConversationID, func(ctx context.Context, conv *runtime.Conversation) (domain.Outcome, error) {
		return conv.SubmitFreeText(ctx, text)
	})
}

func (s *Server) handleConfirmation(ctx context.Context, _ mcp.CallToolRequest, args ConfirmationArgs) (ConversationResult, error) {
	return s.transition(ctx, args.ConversationID, func(ctx context.Context, conv *runtime.Conversation) (domain.Outcome, error) {
		return conv.SubmitConfirmation(ctx, args.Answer)
	})
}

func (s *Server) handleSelectOption(ctx context.Context, _ mcp.CallToolRequest, args OptionArgs) (ConversationResult, error) {
	return s.transition(ctx, args.ConversationID, func(ctx context.Context, conv *runtime.Conversation) (domain.Outcome, error) {
		return conv.SubmitBranchOption(ctx, args.EventID, args.Option)
	})
}

func (s *Server) handleGet(ctx context.Context, _ mcp.CallToolRequest, args GetArgs) (ConversationResult, error) {
	state, err := s.sessions.Load(ctx, args.ConversationID)
	if err != nil {
		return ConversationResult{}, err
	}
	return newResult(args.ConversationID, state, domain.Outcome{}), nil
}

type transitionFunc func(ctx context.Context, conv *runtime.Conversation) (domain.Outcome, error)

// transition loads, resumes, applies fn and saves under the conversation's
// try-lock. Concurrent tool calls on the same conversation get ErrBusy.
// The pending state is saved before the backend call so get_conversation
// sees it, and the call runs detached from the client's cancellation.
func (s *Server) transition(reqCtx context.Context, id string, fn transitionFunc) (ConversationResult, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), s.callTimeout)
	defer cancel()

	var res ConversationResult
	err := s.sessions.TryWithLock(ctx, id, func(ctx context.Context) error {
		store := s.sessions.Store()
		state, err := store.Load(ctx, id)
		if err != nil {
			return err
		}
		conv, err := s.engine.ResumeConversation(state)
		if err != nil {
			return err
		}
		conv.Observe(func(ctx context.Context, pending *domain.SessionState) {
			if err := store.Save(ctx, id, pending); err != nil {
				s.logger.Warn("MCP: Failed to save pending conversation", "conversation_id", id, "error", err)
			}
		})
		out, err := fn(ctx, conv)
		if err != nil {
			return err
		}
		after := conv.State()
		if err := store.Save(ctx, id, after); err != nil {
			return fmt.Errorf("failed to save conversation: %w", err)
		}
		res = newResult(id, after, out)
		return nil
	})
	return res, err
}

func newResult(id string, state *domain.SessionState, out domain.Outcome) ConversationResult {
	events := out.Events
	if events == nil {
		events = []domain.ChatEvent{}
	}
	return ConversationResult{
		ConversationID: id,
		Mode:           state.Mode(),
		Paused:         state.Paused.Kind,
		Events:         events,
		Effects:        out.Effects,
		State:          state,
	}
}

const conversationsURI = "flowchat://conversations"

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(conversationsURI, "Conversations",
		mcp.WithResourceDescription("IDs of the stored conversations"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := s.sessions.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list conversations: %w", err)
		}
		jsonBytes, err := json.Marshal(ids)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      conversationsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
