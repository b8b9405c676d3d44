package server

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ":7484", cfg.HTTPAddr)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 256, cfg.SendBufferSize)
	assert.Equal(t, 6, cfg.InviteCodeLength)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Contains(t, cfg.AllowedOrigins, "http://localhost:3000")
}

func TestSanitizeConfig(t *testing.T) {
	cfg := SanitizeConfig(Config{
		MaxMessageSize:   -1,
		InviteCodeLength: 3,
		AllowedOrigins:   []string{" http://a.test ", "", "  "},
		RateLimit:        RateLimitConfig{Burst: -5},
	})

	def := defaultConfig()
	assert.Equal(t, def.HTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, def.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, def.InviteCodeLength, cfg.InviteCodeLength)
	assert.Equal(t, def.RateLimit, cfg.RateLimit)
	assert.Equal(t, []string{"http://a.test"}, cfg.AllowedOrigins)
}

func TestLoadConfigLayers(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHAT_HTTP_ADDR", ":9000")
	t.Setenv("CHAT_ALLOWED_ORIGINS", "http://env.test,http://other.test")
	t.Setenv("CHAT_RATE_LIMIT_BURST", "3")
	t.Setenv("CHAT_PENDING_ROOM_TTL", "30s")
	t.Setenv("CHAT_LOG_LEVEL", "debug")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := LoadConfig(fs, []string{"-log-format", "json", "-http-addr", ":9100"})
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.HTTPAddr, "flags override env")
	assert.Equal(t, []string{"http://env.test", "http://other.test"}, cfg.AllowedOrigins)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 30*time.Second, cfg.PendingRoomTTL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfigRejectsBadEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHAT_MAX_MESSAGE_SIZE", "lots")

	_, err := LoadConfig(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	assert.Error(t, err)
}
