// Package logging provides structured logging using zap
package logging

import (
	"fmt"
	"os"
)

// NewDefaultLogger creates a logger with default configuration using zap
func NewDefaultLogger() Logger {
	config := DefaultLogConfig()
	logger, err := NewZapLogger(config)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize default zap logger: %v", err))
	}
	return logger
}

// InitGlobalLogger initializes the global logger based solely on LOG_LEVEL
func InitGlobalLogger() {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	config := DefaultLogConfig()
	config.Level = ParseLevel(logLevel)

	logger, err := NewZapLogger(config)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	SetGlobalLogger(logger)
}

// MustSync flushes any buffered log entries for zap loggers
// This should be called before application exit
func MustSync() {
	logger := GetGlobalLogger()
	if zapLogger, ok := logger.(*ZapAdapter); ok {
		_ = zapLogger.Sync()
	}
}

// WithFields is a convenience function to add fields to the global logger
func WithFields(fields ...Field) Logger {
	return GetGlobalLogger().WithFields(fields...)
}

// Err creates an error field with key "error"
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// NamedError creates an error field with a custom key
func NamedError(key string, err error) Field {
	return Field{Key: key, Value: err}
}
