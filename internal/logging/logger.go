package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileMaxSizeMegabytes = 10
	logFileMaxBackups       = 5
	logFileMaxAgeDays       = 30
)

// NewLogger returns a zap logger configured for structured production logging.
// When filePath is set, entries are also written to a rotated JSON log file.
func NewLogger(level string, filePath string) (*zap.Logger, error) {
	atomicLevel := zap.NewAtomicLevelAt(ParseLevel(level))

	if strings.TrimSpace(filePath) == "" {
		cfg := zap.NewProductionConfig()
		cfg.Level = atomicLevel
		return cfg.Build()
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	rotator := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    logFileMaxSizeMegabytes,
		MaxBackups: logFileMaxBackups,
		MaxAge:     logFileMaxAgeDays,
		Compress:   true,
	}

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), atomicLevel),
		zapcore.NewCore(encoder, zapcore.AddSync(rotator), atomicLevel),
	)
	return zap.New(core, zap.AddCaller()), nil
}

// ParseLevel maps a textual level onto a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info", "":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
