package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "info", Format: "json", Output: &buf, Component: "controller"})
	require.NoError(t, err)
	defer l.Close()

	l.Debug("hidden")
	l.Info("toggled", "secure", true)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "toggled", rec["msg"])
	assert.Equal(t, "controller", rec["component"])
	assert.Equal(t, true, rec["secure"])
}

func TestNewWritesFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "securetoggle.log")

	l, err := New(Options{Level: "debug", FilePath: path, Output: &buf})
	require.NoError(t, err)
	l.Debug("gesture received", "id", "g-1")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "gesture received")
	assert.Contains(t, buf.String(), "id=g-1")
}
