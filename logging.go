package main

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// setupLogging builds the root logger. Output always goes to stdout and is
// additionally appended to logFile when one is configured.
func setupLogging(level, logFile string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stdout"}
	if logFile != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, logFile)
	}

	return cfg.Build()
}

func generateRequestID() string {
	return uuid.New().String()[:8]
}

// requestLogger tags every line with the request id.
func requestLogger(base *zap.Logger, requestID string) *zap.Logger {
	return base.With(zap.String("request_id", requestID))
}
