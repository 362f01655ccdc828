package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zberg/go-vcontrold/internal/config"
)

func TestNew(t *testing.T) {
	assert.NotNil(t, New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "1.0.0"))
	assert.NotNil(t, New(config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}, "1.0.0"))
	assert.NotNil(t, Default())
}

func TestNew_JSONDefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "1.2.3", &buf)

	logger.Info("catalog discovered", "commands", 6)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "vclient", entry["service"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, "catalog discovered", entry["msg"])
	assert.Equal(t, float64(6), entry["commands"])
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, "dev", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "service=vclient")
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(config.LoggingConfig{Format: "text"}, "dev", &buf)

	logger.With("component", "poller").Info("cycle done")

	assert.True(t, strings.Contains(buf.String(), "component=poller"))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, parseLevel(tt.input), tt.input)
	}
}
