// Package server assembles the HTTP service and binds it to the fx
// application lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tim/chat-echo/internal/config"
	"github.com/tim/chat-echo/internal/handler"
	"github.com/tim/chat-echo/internal/metrics"
	"github.com/tim/chat-echo/internal/middleware"
	"github.com/tim/chat-echo/internal/router"
)

// Params are the dependencies of the Echo instance.  Metrics and Redis are
// nil when their features are disabled.
type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Chat    *handler.ChatHandler
	Metrics *metrics.Metrics
	Redis   *redis.Client
}

// NewEcho builds the Echo instance with its middleware chain and routes.
// Order: recover, request id, access log, CORS, metrics, response cache.
func NewEcho(p Params) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.JSONSerializer = handler.StrictJSONSerializer{}

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(p.Log))
	e.Use(middleware.PermissiveCORS())
	e.Use(middleware.NewMetrics(p.Metrics))
	e.Use(middleware.NewRedisCache(p.Config.Cache, p.Redis, p.Log))

	router.RegisterRoutes(e, p.Chat)
	if p.Metrics != nil {
		router.RegisterMetrics(e, p.Metrics)
	}
	return e
}

// registerServer listens on OnStart and shuts Echo down on OnStop.  A serve
// failure after startup stops the whole application.
func registerServer(lc fx.Lifecycle, sd fx.Shutdowner, e *echo.Echo, cfg config.Config, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr())
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
			}
			e.Listener = ln
			log.Info("listening", zap.String("addr", ln.Addr().String()))

			go func() {
				if err := e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = sd.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down")
			return e.Shutdown(ctx)
		},
	})
}
