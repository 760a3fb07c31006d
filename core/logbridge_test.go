package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/wirecap/wirecap/core/engine"
	"github.com/wirecap/wirecap/mocks"
)

func TestLogBridge_Levels(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().With("component", "engine").Return(logger)
	gomock.InOrder(
		logger.EXPECT().Debug("dialing"),
		logger.EXPECT().Info("request"),
		logger.EXPECT().Warn("cannot read response"),
		logger.EXPECT().Warn("legacy spelling"),
		logger.EXPECT().Error("handshake failed"),
		logger.EXPECT().Info("unknown level"),
		logger.EXPECT().Info("no level"),
	)

	b := newLogBridge(logger)
	b.Log(engine.LogEntry{Level: "debug", Msg: "dialing"})
	b.Log(engine.LogEntry{Level: "info", Msg: "request"})
	b.Log(engine.LogEntry{Level: "warn", Msg: "cannot read response"})
	b.Log(engine.LogEntry{Level: "WARNING", Msg: "legacy spelling"})
	b.Log(engine.LogEntry{Level: "error", Msg: "handshake failed"})
	b.Log(engine.LogEntry{Level: "alert", Msg: "unknown level"})
	b.Log(engine.LogEntry{Msg: "no level"})
}

func TestLogBridge_SwallowsLoggerPanics(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().With("component", "engine").Return(logger)
	logger.EXPECT().Error("boom").Do(func(string, ...any) { panic("sink unavailable") })

	b := newLogBridge(logger)
	assert.NotPanics(t, func() {
		b.Log(engine.LogEntry{Level: engine.LevelError, Msg: "boom"})
	})
}
