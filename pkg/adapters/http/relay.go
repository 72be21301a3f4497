package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/flowchat/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// CustomizationUpdateType tags appearance updates sent from a host page to embedded widgets.
const CustomizationUpdateType = "CUSTOMIZATION_UPDATE"

// CustomizationMessage is the relayed payload. Customization is opaque to the gateway.
type CustomizationMessage struct {
	Type          string          `json:"type"`
	Customization json.RawMessage `json:"customization"`
}

const (
	relayWriteWait  = 10 * time.Second
	relayPongWait   = 60 * time.Second
	relayPingPeriod = relayPongWait * 9 / 10
	relayMaxMessage = 64 << 10
)

type relayClient struct {
	send chan []byte
}

// CustomizationRelay fans customization updates out to the widgets of a bot.
// The latest update per bot is replayed to widgets that connect later.
type CustomizationRelay struct {
	mu      sync.RWMutex
	clients map[string]map[*relayClient]struct{}
	last    map[string][]byte
	logger  *slog.Logger

	upgrader websocket.Upgrader
}

// NewCustomizationRelay creates an empty relay.
func NewCustomizationRelay() *CustomizationRelay {
	return &CustomizationRelay{
		clients: make(map[string]map[*relayClient]struct{}),
		last:    make(map[string][]byte),
		logger:  logging.NewNop(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Publish relays a customization to every widget of the bot and returns
// how many received it.
func (cr *CustomizationRelay) Publish(botID string, customization json.RawMessage) (int, error) {
	payload, err := json.Marshal(CustomizationMessage{Type: CustomizationUpdateType, Customization: customization})
	if err != nil {
		return 0, err
	}
	return cr.publish(botID, payload, nil), nil
}

func (cr *CustomizationRelay) publish(botID string, payload []byte, from *relayClient) int {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	cr.last[botID] = payload
	delivered := 0
	for c := range cr.clients[botID] {
		if c == from {
			continue
		}
		select {
		case c.send <- payload:
			delivered++
		default:
			cr.logger.Warn("Customization relay: client buffer full, dropping update", "bot_id", botID)
		}
	}
	return delivered
}

func (cr *CustomizationRelay) register(botID string) *relayClient {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	c := &relayClient{send: make(chan []byte, 8)}
	if _, ok := cr.clients[botID]; !ok {
		cr.clients[botID] = make(map[*relayClient]struct{})
	}
	cr.clients[botID][c] = struct{}{}
	if last, ok := cr.last[botID]; ok {
		c.send <- last
	}
	return c
}

func (cr *CustomizationRelay) unregister(botID string, c *relayClient) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if subs, ok := cr.clients[botID]; ok {
		if _, ok := subs[c]; ok {
			delete(subs, c)
			close(c.send)
		}
		if len(subs) == 0 {
			delete(cr.clients, botID)
		}
	}
}

// Clients returns the number of connected widgets of a bot.
func (cr *CustomizationRelay) Clients(botID string) int {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	return len(cr.clients[botID])
}

// PublishCustomization handles POST /embed/{botId}/customization.
// The body is either a full CUSTOMIZATION_UPDATE message or the bare customization object.
func (s *Server) PublishCustomization(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botId")

	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, relayMaxMessage)).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	customization := raw
	var msg CustomizationMessage
	if err := json.Unmarshal(raw, &msg); err == nil && msg.Type == CustomizationUpdateType {
		customization = msg.Customization
	}

	n, err := s.Relay.Publish(botID, customization)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"delivered": n})
}

// CustomizationSocket handles GET /embed/{botId}/customization/ws.
// Updates sent by one socket are relayed to the other widgets of the same bot.
func (s *Server) CustomizationSocket(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botId")
	conn, err := s.Relay.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Customization relay: upgrade failed", "bot_id", botID, "error", err)
		return
	}

	client := s.Relay.register(botID)
	s.logger.Debug("Customization relay: widget connected", "bot_id", botID)

	go s.Relay.writePump(conn, client)
	s.Relay.readPump(conn, botID, client)
}

func (cr *CustomizationRelay) readPump(conn *websocket.Conn, botID string, c *relayClient) {
	defer func() {
		cr.unregister(botID, c)
		_ = conn.Close()
	}()

	conn.SetReadLimit(relayMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(relayPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(relayPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cr.logger.Warn("Customization relay: read failed", "bot_id", botID, "error", err)
			}
			return
		}

		var msg CustomizationMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != CustomizationUpdateType {
			cr.logger.Debug("Customization relay: ignoring message", "bot_id", botID)
			continue
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		cr.publish(botID, payload, c)
	}
}

func (cr *CustomizationRelay) writePump(conn *websocket.Conn, c *relayClient) {
	ticker := time.NewTicker(relayPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
