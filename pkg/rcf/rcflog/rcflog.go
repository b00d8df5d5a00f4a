// Package rcflog is the structured-logging facade used across rcf
// components. It wraps go.uber.org/zap behind a narrow interface so call
// sites log fields instead of formatted strings, while keeping logging
// entirely off the per-tuple hot path.
package rcflog

import "go.uber.org/zap"

// Logger is the subset of *zap.Logger rcf components depend on. Keeping it
// narrow lets tests substitute zap's observer core without importing zap
// types into every package signature.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
}

type zapLogger struct {
	l *zap.Logger
}

func (z *zapLogger) Debug(msg string, fields ...zap.Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...zap.Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...zap.Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...zap.Field) { z.l.Error(msg, fields...) }
func (z *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{l: z.l.With(fields...)}
}

// Wrap adapts a *zap.Logger to the Logger interface.
func Wrap(l *zap.Logger) Logger {
	if l == nil {
		return Nop()
	}
	return &zapLogger{l: l}
}

// Nop returns a Logger that discards everything, the default for every
// rcf component so embedding applications are never forced into a sink.
func Nop() Logger {
	return &zapLogger{l: zap.NewNop()}
}

// Field re-exports zap.Field so callers don't need a direct zap import
// just to build log fields.
type Field = zap.Field

var (
	Int     = zap.Int
	Int64   = zap.Int64
	Float64 = zap.Float64
	String  = zap.String
	Bool    = zap.Bool
)
