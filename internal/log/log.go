// Package log builds the process-wide structured logger.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger at the given level ("debug", "info", "warn",
// "error"; anything else falls back to info) writing to stderr. Fields
// are bound onto every entry; components add their own with With.
func New(level string, fields ...zap.Field) *zap.Logger {
	return NewWithWriter(level, os.Stderr, fields...)
}

// NewWithWriter is New with an explicit sink, for tests.
func NewWithWriter(level string, w io.Writer, fields ...zap.Field) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		parseLevel(level),
	)
	return zap.New(core).With(fields...)
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
