package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 600*time.Second, cfg.Chat.MessageTTL)
	require.Equal(t, 60*time.Second, cfg.Chat.SweepPeriod)
	require.Equal(t, 50, cfg.Chat.PageSize)
	require.Equal(t, 60*time.Second, cfg.WS.PongWait)
	require.Equal(t, 25*time.Second, cfg.WS.PingPeriod)
	require.Equal(t, "8083", cfg.HTTP.Port)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CHAT_MESSAGE_TTL", "30s")
	t.Setenv("DB_DSN", "postgres://other")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "9000", cfg.HTTP.Port)
	require.Equal(t, 30*time.Second, cfg.Chat.MessageTTL)
	require.Equal(t, "postgres://other", cfg.DB.DSN)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("chat:\n  sweep_period: 5s\nredis:\n  addr: localhost:6379\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 5*time.Second, cfg.Chat.SweepPeriod)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, 600*time.Second, cfg.Chat.MessageTTL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
