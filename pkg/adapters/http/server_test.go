package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/flowchat"
	"github.com/aretw0/flowchat/pkg/adapters/api"
	gateway "github.com/aretw0/flowchat/pkg/adapters/http"
	"github.com/aretw0/flowchat/pkg/adapters/memory"
	"github.com/aretw0/flowchat/pkg/adapters/mockbackend"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/observability"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/aretw0/flowchat/pkg/session"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	gw       *gateway.Server
	srv      *httptest.Server
	backend  *mockbackend.Server
	sessions *session.Manager
	metrics  *observability.Metrics
}

func setup(t *testing.T) *fixture {
	t.Helper()
	return setupWith(t, nil)
}

// setupWith builds the fixture with the backend client optionally wrapped.
func setupWith(t *testing.T, wrap func(ports.FlowTransport) ports.FlowTransport) *fixture {
	t.Helper()
	backend := mockbackend.New(mockbackend.DefaultScript())
	backendSrv := httptest.NewServer(backend.Routes())
	t.Cleanup(backendSrv.Close)

	metrics := observability.NewMetrics()
	opts := []flowchat.Option{flowchat.WithLifecycleHooks(metrics.Hooks())}
	if wrap != nil {
		client, err := api.NewClient(backendSrv.URL)
		require.NoError(t, err)
		opts = append(opts, flowchat.WithTransport(wrap(client)))
	}
	eng, err := flowchat.New(backendSrv.URL, opts...)
	require.NoError(t, err)

	sessions := session.NewManager(memory.NewStore())
	gw := gateway.NewServer(eng, sessions,
		gateway.WithMetrics(metrics),
		gateway.WithDefaultBotID("bot-1"),
	)
	srv := httptest.NewServer(gw.Routes())
	t.Cleanup(srv.Close)

	return &fixture{gw: gw, srv: srv, backend: backend, sessions: sessions, metrics: metrics}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (f *fixture) create(t *testing.T, body string) gateway.ConversationResponse {
	t.Helper()
	resp, data := f.do(t, http.MethodPost, "/conversations", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	var conv gateway.ConversationResponse
	require.NoError(t, json.Unmarshal(data, &conv))
	return conv
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func TestGateway_HealthAndInfo(t *testing.T) {
	f := setup(t)

	resp, data := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))

	resp, data = f.do(t, http.MethodGet, "/info", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), flowchat.Version)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestGateway_ConversationLifecycle(t *testing.T) {
	f := setup(t)

	conv := f.create(t, `{"bot_id":"bot-1"}`)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, domain.ModeFlow, conv.Mode)
	require.NotNil(t, conv.State)
	assert.True(t, conv.State.HasSession())
	assert.Equal(t, domain.PauseBranch, conv.State.Paused.Kind)
	require.Len(t, conv.Events, 2)
	branch := conv.Events[1]

	resp, data := f.do(t, http.MethodGet, "/conversations/"+conv.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got gateway.ConversationResponse
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Len(t, got.State.Events, 2)

	resp, data = f.do(t, http.MethodPost, "/conversations/"+conv.ID+"/options",
		`{"event_id":"`+branch.ID+`","option":"Sales"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, domain.PauseQuestion, got.State.Paused.Kind)
	assert.Equal(t, "Sales", got.State.Events[1].SelectedOption)

	resp, data = f.do(t, http.MethodPost, "/conversations/"+conv.ID+"/messages", `{"text":"Ada"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, domain.PauseConfirmation, got.State.Paused.Kind)

	resp, data = f.do(t, http.MethodPost, "/conversations/"+conv.ID+"/confirmation", `{"answer":"no"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, domain.ModeQnA, got.Mode)

	resp, data = f.do(t, http.MethodPost, "/conversations/"+conv.ID+"/messages", `{"text":"price?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got.Events, 2)
	assert.Equal(t, "Plans start at $10 per month.", got.Events[1].Text)

	resp, data = f.do(t, http.MethodGet, "/conversations", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), conv.ID)

	resp, _ = f.do(t, http.MethodDelete, "/conversations/"+conv.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/conversations/"+conv.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGateway_DefaultBot(t *testing.T) {
	f := setup(t)
	conv := f.create(t, "")
	assert.Equal(t, "bot-1", conv.State.BotID)
}

func TestGateway_Rejections(t *testing.T) {
	f := setup(t)
	conv := f.create(t, `{"bot_id":"bot-1"}`)
	branchID := conv.Events[1].ID

	resp, _ := f.do(t, http.MethodPost, "/conversations/"+conv.ID+"/options",
		`{"event_id":"`+branchID+`","option":"Support"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"resolved branch", "/options", `{"event_id":"` + branchID + `","option":"Sales"}`, http.StatusConflict, "option_resolved"},
		{"unknown event", "/options", `{"event_id":"nope","option":"Sales"}`, http.StatusNotFound, "bad_event"},
		{"blank message", "/messages", `{"text":"   "}`, http.StatusBadRequest, "empty_input"},
		{"invalid answer", "/confirmation", `{"answer":"maybe"}`, http.StatusBadRequest, "invalid_answer"},
		{"malformed body", "/messages", `{`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := f.do(t, http.MethodPost, "/conversations/"+conv.ID+tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode, string(data))
			var body errorBody
			require.NoError(t, json.Unmarshal(data, &body))
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}

	resp, _ = f.do(t, http.MethodPost, "/conversations/missing/messages", `{"text":"hi"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGateway_BackendFailureIsNotAnError(t *testing.T) {
	f := setup(t)
	f.backend.FailNext(mockbackend.OpStart, 1)

	conv := f.create(t, `{"bot_id":"bot-1"}`)
	assert.False(t, conv.State.HasSession())
	require.Len(t, conv.Events, 1)
	assert.Equal(t, domain.OriginBot, conv.Events[0].Origin)

	resp, data := f.do(t, http.MethodPost, "/conversations/"+conv.ID+"/messages", `{"text":"hi"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(data), "no_session")
}

func TestGateway_BusyConversation(t *testing.T) {
	f := setup(t)
	conv := f.create(t, `{"bot_id":"bot-1"}`)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.sessions.WithLock(context.Background(), conv.ID, func(ctx context.Context) error {
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	resp, data := f.do(t, http.MethodPost, "/conversations/"+conv.ID+"/options",
		`{"event_id":"`+conv.Events[1].ID+`","option":"Sales"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(data), "busy")

	close(release)
	require.NoError(t, <-done)

	resp, _ = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, metrics := f.do(t, http.MethodGet, "/metrics", "")
	assert.Contains(t, string(metrics), `flowchat_rejected_submissions_total{reason="busy"} 1`)
}

// heldTransport parks RespondFlow until release is closed.
type heldTransport struct {
	ports.FlowTransport
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (h *heldTransport) open() { h.once.Do(func() { close(h.release) }) }

func (h *heldTransport) RespondFlow(ctx context.Context, sessionID string, input domain.FlowInput) (*domain.FlowStep, error) {
	h.entered <- struct{}{}
	<-h.release
	return h.FlowTransport.RespondFlow(ctx, sessionID, input)
}

func TestGateway_PendingStateVisibleDuringCall(t *testing.T) {
	held := &heldTransport{entered: make(chan struct{}, 1), release: make(chan struct{})}
	f := setupWith(t, func(next ports.FlowTransport) ports.FlowTransport {
		held.FlowTransport = next
		return held
	})
	t.Cleanup(held.open)
	conv := f.create(t, `{"bot_id":"bot-1"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/conversations/"+conv.ID+"/events", nil)
	require.NoError(t, err)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Eventually(t, func() bool {
		return f.gw.Streams.Subscribers(conv.ID) == 1
	}, time.Second, 10*time.Millisecond)

	done := make(chan int, 1)
	go func() {
		resp, err := http.Post(f.srv.URL+"/conversations/"+conv.ID+"/options", "application/json",
			strings.NewReader(`{"event_id":"`+conv.Events[1].ID+`","option":"Support"}`))
		if err != nil {
			done <- 0
			return
		}
		_ = resp.Body.Close()
		done <- resp.StatusCode
	}()

	select {
	case <-held.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("backend call was never issued")
	}

	getCtx, getCancel := context.WithTimeout(context.Background(), time.Second)
	defer getCancel()
	getReq, err := http.NewRequestWithContext(getCtx, http.MethodGet, f.srv.URL+"/conversations/"+conv.ID, nil)
	require.NoError(t, err)
	getResp, err := http.DefaultClient.Do(getReq)
	require.NoError(t, err, "GET must not wait for the in-flight call")
	var pending gateway.ConversationResponse
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&pending))
	_ = getResp.Body.Close()
	assert.Equal(t, domain.PauseNone, pending.State.Paused.Kind)
	require.Len(t, pending.State.Events, len(conv.State.Events))
	assert.Equal(t, "Support", pending.State.Events[1].SelectedOption)

	diff := readDiff(t, bufio.NewReader(stream.Body))
	assert.Empty(t, diff.Appended)
	require.Len(t, diff.Resolved, 1)
	assert.Equal(t, "Support", diff.Resolved[0].SelectedOption)
	require.NotNil(t, diff.Paused)
	assert.Equal(t, domain.PauseNone, diff.Paused.Kind)

	held.open()
	assert.Equal(t, http.StatusOK, <-done)

	state, err := f.sessions.Load(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PauseQuestion, state.Paused.Kind)
}

func TestGateway_SubscribeEvents(t *testing.T) {
	f := setup(t)
	conv := f.create(t, `{"bot_id":"bot-1"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/conversations/"+conv.ID+"/events?watch=events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ping\n", line)

	require.Eventually(t, func() bool {
		return f.gw.Streams.Subscribers(conv.ID) == 1
	}, time.Second, 10*time.Millisecond)

	r, data := f.do(t, http.MethodPost, "/conversations/"+conv.ID+"/options",
		`{"event_id":"`+conv.Events[1].ID+`","option":"Support"}`)
	require.Equal(t, http.StatusOK, r.StatusCode, string(data))

	pending := readDiff(t, reader)
	assert.Equal(t, conv.ID, pending.ConversationID)
	require.Len(t, pending.Resolved, 1)
	assert.Equal(t, "Support", pending.Resolved[0].SelectedOption)
	assert.Empty(t, pending.Appended)

	settled := readDiff(t, reader)
	assert.Equal(t, conv.ID, settled.ConversationID)
	assert.Empty(t, settled.Resolved)
	require.Len(t, settled.Appended, 1)
	require.NotNil(t, settled.Paused)
	assert.Equal(t, domain.PauseQuestion, settled.Paused.Kind)
}

func readDiff(t *testing.T, reader *bufio.Reader) domain.StateDiff {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: {") {
			var diff domain.StateDiff
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &diff))
			return diff
		}
	}
}

func TestGateway_SubscribeEvents_UnknownConversation(t *testing.T) {
	f := setup(t)
	resp, _ := f.do(t, http.MethodGet, "/conversations/missing/events", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func dialRelay(t *testing.T, f *fixture, botID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/embed/" + botID + "/customization/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) gateway.CustomizationMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg gateway.CustomizationMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestGateway_CustomizationRelay(t *testing.T) {
	f := setup(t)
	a := dialRelay(t, f, "bot-1")
	b := dialRelay(t, f, "bot-1")
	other := dialRelay(t, f, "bot-2")
	require.Eventually(t, func() bool {
		return f.gw.Relay.Clients("bot-1") == 2 && f.gw.Relay.Clients("bot-2") == 1
	}, time.Second, 10*time.Millisecond)

	resp, data := f.do(t, http.MethodPost, "/embed/bot-1/customization", `{"primaryColor":"#ff0000"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"delivered":2}`, string(data))

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readUpdate(t, conn)
		assert.Equal(t, gateway.CustomizationUpdateType, msg.Type)
		assert.JSONEq(t, `{"primaryColor":"#ff0000"}`, string(msg.Customization))
	}

	// Updates from a widget reach the other widgets of the same bot only.
	require.NoError(t, a.WriteJSON(map[string]any{
		"type":          gateway.CustomizationUpdateType,
		"customization": map[string]string{"primaryColor": "#00ff00"},
	}))
	msg := readUpdate(t, b)
	assert.JSONEq(t, `{"primaryColor":"#00ff00"}`, string(msg.Customization))

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestGateway_CustomizationReplay(t *testing.T) {
	f := setup(t)

	resp, data := f.do(t, http.MethodPost, "/embed/bot-1/customization",
		`{"type":"CUSTOMIZATION_UPDATE","customization":{"title":"Hi"}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"delivered":0}`, string(data))

	late := dialRelay(t, f, "bot-1")
	msg := readUpdate(t, late)
	assert.JSONEq(t, `{"title":"Hi"}`, string(msg.Customization))
}
