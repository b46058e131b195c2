// Package loggertest provides loggers that record entries for assertions.
package loggertest

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"

	"github.com/cycore-edu/cycore/backend/internal/logger"
)

// Observed returns a logger that keeps every entry in memory.
func Observed() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}
