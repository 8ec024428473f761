// Package logger provides a shared logging interface backed by zap.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log *zap.SugaredLogger
	mu  sync.Mutex
)

func init() {
	// Default to console output until Initialize is called. This keeps
	// package-level logging usable from init paths and tests.
	Initialize(false)
}

// Initialize configures the package-level logger. When structured is true the
// logger emits JSON (server mode); otherwise it emits a human-readable console
// format (CLI mode).
func Initialize(structured bool) {
	mu.Lock()
	defer mu.Unlock()

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if structured {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	level := zapcore.InfoLevel
	if os.Getenv("LHUB_DEBUG") != "" {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	log = zap.New(core).Sugar()
}

// Info logs a message at info level.
func Info(args ...any) { log.Info(args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { log.Infof(format, args...) }

// Debug logs a message at debug level.
func Debug(args ...any) { log.Debug(args...) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { log.Debugf(format, args...) }

// Warn logs a message at warn level.
func Warn(args ...any) { log.Warn(args...) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { log.Warnf(format, args...) }

// Error logs a message at error level.
func Error(args ...any) { log.Error(args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { log.Errorf(format, args...) }

// Fatalf logs a formatted message at fatal level and exits.
func Fatalf(format string, args ...any) { log.Fatalf(format, args...) }
