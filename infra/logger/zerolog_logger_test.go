package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	assert.NoError(t, os.Setenv("APP_ENV", "dev"))
	defer func() { assert.NoError(t, os.Unsetenv("APP_ENV")) }()
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Warnw("warn", map[string]any{"k": 2})
	l.Errorf("error")
}

func TestZerologLoggerJSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "controller", "debug").With("run_id", "r1")
	l.Warnw("action clamped", map[string]any{"time_index": 3, "soc": 0.5})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "controller", entry["component"])
	assert.Equal(t, "r1", entry["run_id"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "action clamped", entry["message"])
	assert.Equal(t, float64(3), entry["time_index"])
}

func TestZerologLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "c", "warn")
	l.Infof("hidden")
	l.Debugw("hidden", nil)
	assert.Empty(t, buf.String())
	l.Errorf("shown")
	assert.True(t, strings.Contains(buf.String(), "shown"))
}
