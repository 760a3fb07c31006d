package core

import (
	"strings"

	"github.com/wirecap/wirecap/core/engine"
	"github.com/wirecap/wirecap/pkg/logging"
)

// logBridge forwards engine log entries to the host logger.
type logBridge struct {
	logger logging.Logger
}

var _ engine.LogAddon = (*logBridge)(nil)

func newLogBridge(logger logging.Logger) *logBridge {
	return &logBridge{logger: logger.With("component", "engine")}
}

func (b *logBridge) Name() string { return "logbridge" }

// Log never fails: a panicking logger is swallowed so logging cannot break
// proxying.
func (b *logBridge) Log(entry engine.LogEntry) {
	defer func() { _ = recover() }()

	switch strings.ToLower(entry.Level) {
	case engine.LevelDebug:
		b.logger.Debug(entry.Msg)
	case engine.LevelWarn, "warning":
		b.logger.Warn(entry.Msg)
	case engine.LevelError:
		b.logger.Error(entry.Msg)
	default:
		b.logger.Info(entry.Msg)
	}
}
