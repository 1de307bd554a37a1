// Package bridgelog provides the bridge's structured logging, grounded on
// spencerandtheteagues-apex-build-platform's internal/logging: a
// sync.Once-initialized global zap.Logger switching between production and
// development encoders on the BRIDGE_ENV variable.
package bridgelog

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	once   sync.Once
)

// Init initializes the global logger. Safe to call multiple times.
func Init() {
	once.Do(func() {
		var cfg zap.Config
		if os.Getenv("BRIDGE_ENV") == "production" {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "ts"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		} else {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		built, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			built = zap.NewNop()
		}
		logger = built
		sugar = logger.Sugar()
	})
}

// L returns the global structured logger.
func L() *zap.Logger {
	if logger == nil {
		Init()
	}
	return logger
}

// S returns the global sugared logger (printf-style).
func S() *zap.SugaredLogger {
	if sugar == nil {
		Init()
	}
	return sugar
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// WithContext returns a logger with additional structured fields attached.
func WithContext(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Err is a tiny convenience wrapper around zap.Error, used throughout the
// bridge's internal packages for the common "failed with: %w" case.
func Err(err error) zap.Field {
	return zap.Error(err)
}
