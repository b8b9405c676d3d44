package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "json", "warn")

	logger.Info("hidden")
	logger.Warn("shown", "room", "alpha")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "shown", record["msg"])
	assert.Equal(t, "alpha", record["room"])
	assert.Equal(t, "kollab-chat", record["service"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelError, parseLevel(" ERROR "))
	assert.Equal(t, slog.LevelInfo, parseLevel("chatty"))
}
