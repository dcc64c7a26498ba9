// Package logger exposes package-level leveled logging for the whole
// process, backed by zap. Call InitLogging once at startup; before that,
// all calls are no-ops so library code can log unconditionally.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger

// InitLogging sets up the global logger. With debugMode the level drops
// to debug and caller annotations are enabled; logPath, when non-empty,
// adds a file sink next to stderr.
func InitLogging(debugMode bool, logPath string) error {
	cfg := zap.NewDevelopmentConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	if debugMode {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		cfg.DisableCaller = true
	}

	cfg.OutputPaths = []string{"stderr"}
	if logPath != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, logPath)
	}

	built, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	log = built.Sugar()
	return nil
}

// Close flushes buffered entries.
func Close() {
	if log != nil {
		_ = log.Sync()
	}
}

func Debugf(format string, v ...any) {
	if log != nil {
		log.Debugf(format, v...)
	}
}

func Infof(format string, v ...any) {
	if log != nil {
		log.Infof(format, v...)
	}
}

func Warnf(format string, v ...any) {
	if log != nil {
		log.Warnf(format, v...)
	}
}

func Errorf(format string, v ...any) {
	if log != nil {
		log.Errorf(format, v...)
	}
}
