package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestSetupWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "info", "json")

	WithComponent("collect").Info("scene emitted", "scene", 3)
	Get().Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "collect", rec["component"])
	assert.Equal(t, "scene emitted", rec["msg"])
	assert.EqualValues(t, 3, rec["scene"])
}

func TestSetupWriterText(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "text")

	WithRun("abc").Debug("run started")
	assert.Contains(t, buf.String(), "run_id=abc")
}
