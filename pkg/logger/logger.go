// Package logger provides opinionated logging capabilities for finvisor
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a colored console logger for interactive use.
func NewLogger(debug bool) *zap.Logger {
	return NewLoggerWithLevel(levelFor(debug))
}

// NewLoggerWithLevel builds the console logger around an atomic level so the
// level can be changed at runtime (see config.Watch).
func NewLoggerWithLevel(level zap.AtomicLevel) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	return zap.New(core, zap.AddCaller())
}

// NewJSONLogger returns a JSON logger for environments that collect stdout,
// such as Lambda, where color codes only add noise.
func NewJSONLogger(debug bool) *zap.Logger {
	return NewJSONLoggerWithLevel(levelFor(debug))
}

// NewJSONLoggerWithLevel is NewJSONLogger around an atomic level.
func NewJSONLoggerWithLevel(level zap.AtomicLevel) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	return zap.New(core, zap.AddCaller())
}

func levelFor(debug bool) zap.AtomicLevel {
	if debug {
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zap.NewAtomicLevelAt(zap.InfoLevel)
}

// Truncate shortens s for log previews, flattening newlines.
func Truncate(s string, maxLen int) string {
	flat := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\n' || r == '\r' {
			r = ' '
		}
		flat = append(flat, r)
	}
	if len(flat) <= maxLen {
		return string(flat)
	}
	return string(flat[:maxLen]) + "..."
}
