// Package api implements ports.FlowTransport over the flow backend's HTTP API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/flowchat/internal/logging"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/go-resty/resty/v2"
)

// Backend routes.
const (
	StartPath   = "/api/flow/start/{botId}"
	RespondPath = "/api/flow/session/{sessionId}/respond"
	AskPath     = "/api/bots/ask"
)

// DefaultTimeout bounds every backend call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Client talks to the flow backend. It never retries.
type Client struct {
	baseURL string
	http    *resty.Client
	logger  *slog.Logger
}

var _ ports.FlowTransport = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// WithToken attaches a bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.http.SetAuthToken(token)
		}
	}
}

// WithHeaders adds static headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.http.SetHeaders(headers)
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

const userAgent = "flowchat/1"

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("api: backend base URL is required")
	}

	c := &Client{
		baseURL: baseURL,
		http: resty.New().
			SetBaseURL(baseURL).
			SetRetryCount(0).
			SetHeader("User-Agent", userAgent).
			SetTimeout(DefaultTimeout),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StartFlow opens a new flow session for a bot.
func (c *Client) StartFlow(ctx context.Context, botID string) (*domain.FlowStep, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("botId", botID).
		Post(StartPath)
	raw, err := c.decode("start", resp, err)
	if err != nil {
		return nil, err
	}

	step, err := DecodeStep(raw)
	if err != nil {
		return nil, err
	}
	if step.SessionID == "" {
		return nil, fmt.Errorf("%w: start response has no sessionId", domain.ErrProtocol)
	}
	c.logger.Debug("Flow started", "bot_id", botID, "session_id", step.SessionID, "messages", len(step.Messages))
	return step, nil
}

// RespondFlow delivers raw text or an option selector to a paused flow.
func (c *Client) RespondFlow(ctx context.Context, sessionID string, input domain.FlowInput) (*domain.FlowStep, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("sessionId", sessionID).
		SetBody(EncodeInput(input)).
		Post(RespondPath)
	raw, err := c.decode("respond", resp, err)
	if err != nil {
		return nil, err
	}

	step, err := DecodeStep(raw)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Flow step received", "session_id", sessionID, "messages", len(step.Messages), "finished", step.Finished)
	return step, nil
}

// AskQuestion sends a free-form question to the bot's Q&A endpoint.
func (c *Client) AskQuestion(ctx context.Context, botID, question string) (*domain.Answer, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"question": question, "botId": botID}).
		Post(AskPath)
	raw, err := c.decode("ask", resp, err)
	if err != nil {
		return nil, err
	}
	return DecodeAnswer(raw)
}

// decode classifies a failed call as a network or protocol error and
// parses the JSON object of a successful one.
func (c *Client) decode(op string, resp *resty.Response, err error) (map[string]any, error) {
	if err != nil {
		c.logger.Debug("Backend call failed", "operation", op, "error", err)
		return nil, fmt.Errorf("%s: %w: %w", op, domain.ErrNetwork, err)
	}
	if status := resp.StatusCode(); status < 200 || status >= 300 {
		c.logger.Debug("Backend returned non-success status", "operation", op, "status", status)
		return nil, fmt.Errorf("%s: %w: status %d: %s", op, domain.ErrProtocol, status, truncate(resp.String(), 200))
	}

	var raw map[string]any
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("%s: %w: invalid JSON body: %w", op, domain.ErrProtocol, err)
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
