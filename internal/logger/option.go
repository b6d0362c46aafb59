package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// thresholdCore replaces the level check of the wrapped core with a fixed minimum.
// Entries at or above minimum are written even when the wrapped core's own
// level, usually the one set by --log-level, would drop them.
type thresholdCore struct {
	zapcore.Core

	minimum zapcore.Level
}

func (c *thresholdCore) Enabled(l zapcore.Level) bool {
	return c.minimum.Enabled(l)
}

// Check registers this core instead of the wrapped one, so the wrapped level is bypassed.
//
//nolint:gocritic // AddCore requires ent to be passed by value.
func (c *thresholdCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(ent.Level) {
		return ce
	}

	return ce.AddCore(ent, c)
}

//nolint:ireturn,nolintlint // zapcore.Core is the interface zap expects back.
func (c *thresholdCore) With(fields []zapcore.Field) zapcore.Core {
	return &thresholdCore{Core: c.Core.With(fields), minimum: c.minimum}
}

// WithLevel pins the minimum level of a derived logger.
// The command executor uses it for subprocess echo: command_log_level decides
// what child output is shown, independently of the pipeline's own log level.
//
//nolint:ireturn,nolintlint // zap.Option is the interface zap expects back.
func WithLevel(minimum zapcore.Level) zap.Option {
	return zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &thresholdCore{Core: core, minimum: minimum}
	})
}
