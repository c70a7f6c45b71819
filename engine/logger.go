package engine

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the engine's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger replaces the engine logger. A nil logger restores the no-op.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}

func debugf(format string, args ...any) {
	if l := Logger(); l.Core().Enabled(zap.DebugLevel) {
		l.Sugar().Debugf(format, args...)
	}
}
