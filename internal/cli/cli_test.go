package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/flowchat/internal/config"
	"github.com/aretw0/flowchat/internal/logging"
	"github.com/aretw0/flowchat/pkg/adapters/mockbackend"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	backend := httptest.NewServer(mockbackend.New(mockbackend.DefaultScript()).Routes())
	t.Cleanup(backend.Close)

	cfg := config.Default()
	cfg.Backend.URL = backend.URL
	cfg.Store.Kind = config.StoreFile
	cfg.Store.Path = filepath.Join(t.TempDir(), "sessions")
	return cfg
}

func TestRunChat_PersistsAndResumes(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	out := &bytes.Buffer{}
	finished, err := RunChat(ctx, ChatOptions{
		Config:         cfg,
		ConversationID: "demo",
		In:             strings.NewReader("1\nAda\n"),
		Out:            out,
	})
	require.NoError(t, err)
	assert.False(t, finished)
	assert.Contains(t, out.String(), "What's your name?")

	out.Reset()
	finished, err = RunChat(ctx, ChatOptions{
		Config:         cfg,
		ConversationID: "demo",
		In:             strings.NewReader("yes\n"),
		Out:            out,
	})
	require.NoError(t, err)
	assert.True(t, finished)
	assert.Contains(t, out.String(), "Resuming conversation 'demo'")
	assert.Contains(t, out.String(), "  -> Sales")
}

func TestRunChat_Fresh(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	_, err := RunChat(ctx, ChatOptions{Config: cfg, ConversationID: "demo", In: strings.NewReader("3\n"), Out: &bytes.Buffer{}})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	finished, err := RunChat(ctx, ChatOptions{Config: cfg, ConversationID: "demo", Fresh: true, In: strings.NewReader(""), Out: out})
	require.NoError(t, err)
	assert.False(t, finished)
	assert.NotContains(t, out.String(), "Resuming")
	assert.Contains(t, out.String(), "  1) Sales")
}

func TestRunChat_JSON(t *testing.T) {
	cfg := testConfig(t)
	out := &bytes.Buffer{}

	_, err := RunChat(context.Background(), ChatOptions{
		Config: cfg,
		JSON:   true,
		In:     strings.NewReader(`{"text":"Docs"}` + "\n"),
		Out:    out,
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.True(t, strings.HasPrefix(lines[0], "{"), "json lines only, no banner")
	assert.Contains(t, out.String(), "https://example.com/docs")
}

func TestNewPersistence(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewNop()
	state := domain.NewSessionState("bot-1")

	t.Run("memory", func(t *testing.T) {
		p, err := NewPersistence(ctx, config.Store{Kind: config.StoreMemory}, logger)
		require.NoError(t, err)
		assert.Nil(t, p.Locker)
		require.NoError(t, p.Store.Save(ctx, "a", state))
	})

	t.Run("redis with encryption", func(t *testing.T) {
		mr := miniredis.RunT(t)
		key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
		p, err := NewPersistence(ctx, config.Store{Kind: config.StoreRedis, RedisAddr: mr.Addr(), Prefix: "t:", Key: key}, logger)
		require.NoError(t, err)
		defer p.Close()
		require.NotNil(t, p.Locker)

		require.NoError(t, p.Store.Save(ctx, "a", state))
		raw, err := mr.Get("t:a")
		require.NoError(t, err)
		assert.NotContains(t, raw, `"bot_id":"bot-1"`)

		loaded, err := p.Store.Load(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "bot-1", loaded.BotID)
		assert.NotNil(t, p.Sessions(logger))
	})

	t.Run("redis unreachable", func(t *testing.T) {
		_, err := NewPersistence(ctx, config.Store{Kind: config.StoreRedis, RedisAddr: "127.0.0.1:1"}, logger)
		require.Error(t, err)
	})

	t.Run("bad pii pattern", func(t *testing.T) {
		_, err := NewPersistence(ctx, config.Store{Kind: config.StoreMemory, PIIPatterns: []string{"("}}, logger)
		require.Error(t, err)
	})
}

func TestSessionCommands(t *testing.T) {
	ctx := context.Background()
	p, err := NewPersistence(ctx, config.Store{Kind: config.StoreMemory}, logging.NewNop())
	require.NoError(t, err)

	out := &bytes.Buffer{}
	require.NoError(t, ListSessions(ctx, p.Store, out))
	assert.Contains(t, out.String(), "No stored conversations")

	require.NoError(t, p.Store.Save(ctx, "c1", domain.NewSessionState("bot-1")))

	out.Reset()
	require.NoError(t, ListSessions(ctx, p.Store, out))
	assert.Contains(t, out.String(), "- c1")

	out.Reset()
	require.NoError(t, InspectSession(ctx, p.Store, "c1", out))
	assert.Contains(t, out.String(), `"bot-1"`)

	require.Error(t, InspectSession(ctx, p.Store, "missing", out))

	out.Reset()
	require.NoError(t, RemoveSessions(ctx, p.Store, []string{"c1"}, out))
	assert.Contains(t, out.String(), "Removed conversation 'c1'")
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ListenAndServe(ctx, "127.0.0.1:0", http.NotFoundHandler(), logging.NewNop())
	}()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * ShutdownTimeout):
		t.Fatal("server did not stop")
	}
}
