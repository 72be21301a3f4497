package config_test

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/flowchat/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flowchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), false)
	require.NoError(t, err)

	assert.Equal(t, config.StoreFile, cfg.Store.Kind)
	assert.Equal(t, ".flowchat/conversations", cfg.Store.Path)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, ":8080", cfg.Gateway.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_MissingRequired(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), true)
	require.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
backend:
  url: https://flows.example.com
  timeout: 5s
  headers:
    X-Tenant: acme
store:
  kind: File
  path: /tmp/sessions
log:
  level: debug
`)
	cfg, err := config.Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, "https://flows.example.com", cfg.Backend.URL)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, map[string]string{"X-Tenant": "acme"}, cfg.Backend.Headers)
	assert.Equal(t, config.StoreFile, cfg.Store.Kind)
	assert.Equal(t, "/tmp/sessions", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "bot-1", cfg.Backend.BotID, "unset keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
backend:
  url: https://flows.example.com
store:
  kind: file
`)
	t.Setenv("FLOWCHAT_BACKEND_URL", "http://localhost:9999")
	t.Setenv("FLOWCHAT_BACKEND_TOKEN", "secret")
	t.Setenv("FLOWCHAT_STORE_KIND", "redis")
	t.Setenv("FLOWCHAT_STORE_REDIS_ADDR", "redis:6379")
	t.Setenv("FLOWCHAT_STORE_TTL", "1h")
	t.Setenv("FLOWCHAT_GATEWAY_CALL_TIMEOUT", "5s")
	t.Setenv("FLOWCHAT_LOG_LEVEL", "warn")

	cfg, err := config.Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9999", cfg.Backend.URL)
	assert.Equal(t, "secret", cfg.Backend.Token)
	assert.Equal(t, config.StoreRedis, cfg.Store.Kind)
	assert.Equal(t, "redis:6379", cfg.Store.RedisAddr)
	assert.Equal(t, time.Hour, cfg.Store.TTL)
	assert.Equal(t, 5*time.Second, cfg.Gateway.CallTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown store", "store:\n  kind: s3\n", "store.kind"},
		{"empty file path", "store:\n  kind: file\n  path: \"\"\n", "store.path"},
		{"bad key", "store:\n  key: not-base64!\n", "store.key"},
		{"short key", "store:\n  key: " + base64.StdEncoding.EncodeToString([]byte("short")) + "\n", "32 bytes"},
		{"bad yaml", "backend: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body), true)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}

func TestStore_EncryptionKey(t *testing.T) {
	raw := make([]byte, 32)
	s := config.Store{Key: base64.StdEncoding.EncodeToString(raw)}
	key, err := s.EncryptionKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	key, err = config.Store{}.EncryptionKey()
	require.NoError(t, err)
	assert.Nil(t, key)
}
