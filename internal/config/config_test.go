package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123456:ABCDEFGHIJ")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001")
	t.Setenv("HANDLES", " alice , 0x1111111111111111111111111111111111111111,, ")
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		setRequired(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "0x1111111111111111111111111111111111111111"}, cfg.Handles)
		assert.Equal(t, 20*time.Second, cfg.PollInterval)
		assert.Equal(t, 600*time.Millisecond, cfg.SendDelay)
		assert.Equal(t, 3, cfg.SendMaxAttempts)
		assert.Equal(t, 50, cfg.TradePageLimit)
		assert.Equal(t, "json", cfg.StateBackend)
		assert.False(t, cfg.FlushEachEvent)
	})

	t.Run("overrides", func(t *testing.T) {
		setRequired(t)
		t.Setenv("POLL_SECONDS", "5")
		t.Setenv("STATE_BACKEND", "SQLite")
		t.Setenv("FLUSH_EACH_EVENT", "true")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, cfg.PollInterval)
		assert.Equal(t, "sqlite", cfg.StateBackend)
		assert.True(t, cfg.FlushEachEvent)
	})

	t.Run("fails fast without token", func(t *testing.T) {
		setRequired(t)
		t.Setenv("TELEGRAM_TOKEN", "")
		_, err := Load()
		assert.ErrorContains(t, err, "TELEGRAM_TOKEN")
	})

	t.Run("fails fast without chat id", func(t *testing.T) {
		setRequired(t)
		t.Setenv("TELEGRAM_CHAT_ID", "")
		_, err := Load()
		assert.ErrorContains(t, err, "TELEGRAM_CHAT_ID")
	})

	t.Run("fails fast with blank handle list", func(t *testing.T) {
		setRequired(t)
		t.Setenv("HANDLES", " , ,")
		_, err := Load()
		assert.ErrorContains(t, err, "HANDLES")
	})

	t.Run("rejects unknown backend", func(t *testing.T) {
		setRequired(t)
		t.Setenv("STATE_BACKEND", "redis")
		_, err := Load()
		assert.ErrorContains(t, err, "STATE_BACKEND")
	})
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "(not set)", maskSecret(""))
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "1234****WXYZ", maskSecret("1234567890WXYZ"))
}
