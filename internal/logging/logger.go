// Package logging builds the zap logger shared by the whole service.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tim/chat-echo/internal/config"
)

// New returns a JSON production logger when cfg.Env is "prod" and a
// human-readable development logger otherwise, both at cfg.LogLevel.
func New(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zc := zap.NewDevelopmentConfig()
	if cfg.IsProd() {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return log.With(zap.String("env", cfg.Env)), nil
}
