package logger

import (
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log *zap.Logger
)

// Setup builds the process logger. level is one of debug, info, warn, error;
// format is "json" or "console".
func Setup(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if level == "" {
		level = "info"
	}
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(format) == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), lvl)
	l := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	mu.Lock()
	log = l
	mu.Unlock()
	return l, nil
}

// L returns the process logger, falling back to a no-op logger before Setup.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if log == nil {
		return zap.NewNop()
	}
	return log
}

// Set replaces the process logger.
func Set(l *zap.Logger) {
	mu.Lock()
	log = l
	mu.Unlock()
}

// LogRequest logs an outgoing request to an upstream service.
func LogRequest(service, method, url string, fields ...zap.Field) {
	L().Debug("upstream request",
		append([]zap.Field{
			zap.String("service", service),
			zap.String("method", method),
			zap.String("url", url),
		}, fields...)...)
}

// LogResponse logs an upstream response.
func LogResponse(service string, statusCode int, duration time.Duration, resultCount int) {
	L().Debug("upstream response",
		zap.String("service", service),
		zap.Int("status", statusCode),
		zap.Duration("duration", duration),
		zap.Int("results", resultCount),
	)
}

// LogError logs a failed upstream operation.
func LogError(service, operation string, err error) {
	L().Warn("upstream error",
		zap.String("service", service),
		zap.String("operation", operation),
		zap.Error(err),
	)
}
