package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)

	_, err = ParseLevel("verbose")
	assert.ErrorIs(t, err, ErrInvalidLogLevel)
}

func TestNewJSONWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("info", "", &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown", "component", "test")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "test", line["component"])
}

func TestNewForcedText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", "text", &buf)
	require.NoError(t, err)

	logger.Warn("careful")
	assert.Contains(t, buf.String(), "msg=careful")

	_, err = New("info", "xml", &buf)
	assert.Error(t, err)
}
