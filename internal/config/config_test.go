package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:8080", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.DialTimeout)
	assert.Equal(t, 30*time.Second, cfg.API.ReadTimeout)
	assert.Equal(t, 30, cfg.Chat.PageSize)
	assert.Equal(t, 27*time.Second, cfg.Socket.PingPeriod)
	assert.True(t, cfg.Socket.PingPeriod < cfg.Socket.PongWait, "ping period must be shorter than pong wait")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
api:
  base_url: "https://chat.example.com"
  read_timeout: 5s
socket:
  url: "wss://chat.example.com/ws"
chat:
  page_size: 50
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://chat.example.com", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.ReadTimeout)
	assert.Equal(t, "wss://chat.example.com/ws", cfg.Socket.URL)
	assert.Equal(t, 50, cfg.Chat.PageSize)

	// Unset values still get defaults
	assert.Equal(t, 10*time.Second, cfg.API.DialTimeout)
	assert.Equal(t, 128, cfg.Chat.EventQueueSize)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
