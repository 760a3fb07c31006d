package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", "json", zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Info("hidden message")
	logger.With("component", "test").Warn("visible message", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden message")
	assert.Contains(t, out, "visible message")
	assert.Contains(t, out, `"component":"test"`)
	assert.Contains(t, out, `"key":"value"`)
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New("loud", "console", nil)
	assert.Error(t, err)
}

func TestInitLogger_ReplacesGlobal(t *testing.T) {
	before := GetLogger()
	t.Cleanup(func() {
		globalMu.Lock()
		globalLogger = before
		globalMu.Unlock()
	})

	var buf bytes.Buffer
	InitLogger("debug", "json", zapcore.AddSync(&buf))
	GetLogger().Debug("from global")
	assert.Contains(t, buf.String(), "from global")
}
