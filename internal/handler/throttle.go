package handler

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewFailureLogger returns a child of base that writes at most burst entries
// per message and level in each window and drops the rest. Query failures
// arrive in bursts when a caller hammers an unloaded area; this keeps them
// from flooding the log without touching results.
func NewFailureLogger(base *zap.Logger, window time.Duration, burst int) *zap.Logger {
	if window <= 0 || burst <= 0 {
		return base
	}
	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewSamplerWithOptions(core, window, burst, 0)
	}))
}
