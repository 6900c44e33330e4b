package main // Entry point package

import (
	"log" // Logging library for failures before zap exists

	"go.uber.org/fx"         // Application lifecycle
	"go.uber.org/fx/fxevent" // fx event logging
	"go.uber.org/zap"        // Structured logging

	"github.com/tim/chat-echo/internal/config" // Internal config loader
	"github.com/tim/chat-echo/internal/server" // HTTP server wiring
)

func main() {
	cfg, err := config.Load() // Load environment config
	if err != nil {
		log.Fatal(err)
	}

	fx.New(
		fx.Supply(cfg),
		server.Module,
		fx.StopTimeout(cfg.ShutdownTimeout),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
	).Run() // Blocks until SIGINT/SIGTERM, then stops every hook
}
