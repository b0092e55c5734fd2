package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn", "taskhub-admin")

	l.Info("dropped")
	assert.Empty(t, buf.String())

	l.Warn("kept", "tenant_id", "t-1")
	assert.Contains(t, buf.String(), `"service":"taskhub-admin"`)
	assert.Contains(t, buf.String(), `"tenant_id":"t-1"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}
