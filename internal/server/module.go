package server

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tim/chat-echo/internal/config"
	"github.com/tim/chat-echo/internal/handler"
	"github.com/tim/chat-echo/internal/logging"
	"github.com/tim/chat-echo/internal/metrics"
	"github.com/tim/chat-echo/internal/queue"
	"github.com/tim/chat-echo/internal/service"
)

// Module wires everything except config.Config, which the caller supplies.
var Module = fx.Options(
	fx.Provide(
		logging.New,
		newMetrics,
		newRedis,
		newPublisher,
		newEventSink,
		handler.NewChatHandler,
		NewEcho,
	),
	fx.Invoke(registerServer, registerConsumer),
)

func newMetrics(cfg config.Config) (*metrics.Metrics, error) {
	if !cfg.MetricsEnabled {
		return nil, nil
	}
	return metrics.New()
}

// newRedis returns nil when caching is off or Redis is unreachable; the
// cache middleware then passes every request through.
func newRedis(cfg config.Config, lc fx.Lifecycle, log *zap.Logger) *redis.Client {
	if !cfg.Cache.Enabled {
		return nil
	}
	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn("redis unreachable, response cache disabled", zap.String("addr", cfg.Redis.Addr))
		return nil
	}
	lc.Append(fx.StopHook(rdb.Close))
	return rdb
}

func newPublisher(cfg config.Config, lc fx.Lifecycle, log *zap.Logger, m *metrics.Metrics) *service.ChatPublisher {
	if !cfg.Events.Enabled {
		return nil
	}
	var dropped service.Incrementer
	if m != nil {
		dropped = m.EventsDropped
	}
	sender := &service.AMQPSender{URL: cfg.Events.URL, Queue: cfg.Events.Queue}
	p := service.NewChatPublisher(sender, cfg.Events.Buffer, log, dropped)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { p.Start(); return nil },
		OnStop:  p.Stop,
	})
	return p
}

// newEventSink avoids handing the handler a non-nil interface around a nil
// publisher.
func newEventSink(p *service.ChatPublisher) handler.EventSink {
	if p == nil {
		return nil
	}
	return p
}

func registerConsumer(cfg config.Config, lc fx.Lifecycle, log *zap.Logger) {
	if !cfg.Events.ConsumerEnabled {
		return
	}
	c := &queue.Consumer{URL: cfg.Events.URL, Queue: cfg.Events.Queue, Log: log}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				_ = c.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stop context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stop.Done():
				return stop.Err()
			}
		},
	})
}
