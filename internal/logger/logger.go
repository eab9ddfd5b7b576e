// Package logger builds the zap loggers used by every binary and bounds
// user-controlled strings before they reach a log line.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewProductionLogger creates a JSON logger on stderr. Every entry carries the
// emitting service (server, worker) and its build version. Debug mode lowers
// the level and turns off sampling so prompt and response dumps are not dropped.
func NewProductionLogger(service, version string, debugMode bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = levelFor(debugMode)
	config.EncoderConfig.TimeKey = "ts"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	config.InitialFields = map[string]any{"service": service, "version": version}
	if debugMode {
		config.Sampling = nil
	}
	return config.Build()
}

// NewConsoleLogger creates a human-readable logger for the operator CLI.
// Output goes to stderr so command output on stdout stays machine-readable.
func NewConsoleLogger(debugMode bool) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.Level = levelFor(debugMode)
	config.OutputPaths = []string{"stderr"}
	config.DisableStacktrace = !debugMode
	config.DisableCaller = !debugMode
	return config.Build()
}

// Sync flushes any buffered log entries. Safe to call on a nil logger.
func Sync(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	return logger.Sync()
}

func levelFor(debugMode bool) zap.AtomicLevel {
	if debugMode {
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zap.NewAtomicLevelAt(zapcore.InfoLevel)
}
