// Package queue contains the background consumer that listens to the chat
// event queue and writes one structured audit log line per event.
package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Consumer reads ChatEvents from a durable queue.  Run keeps a reconnect
// loop alive until its context is cancelled.
type Consumer struct {
    URL   string
    Queue string
    Log   *zap.Logger
}

// Run connects to RabbitMQ, declares the queue (durable) and consumes
// messages.  Dial failures back off exponentially up to 30s.  Malformed
// messages are rejected without requeue so they cannot loop.  Run returns
// ctx.Err() once ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            c.Log.Warn("audit consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleepCtx(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.Log.Warn("audit consumer: consume loop ended, reconnecting", zap.Error(err))
        if !sleepCtx(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.Log.Warn("audit consumer: set QoS failed", zap.Error(err))
    }

    if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }

    msgs, err := ch.ConsumeWithContext(ctx, c.Queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.handleMessage(d.Body); err != nil {
                c.Log.Warn("audit consumer: handle message failed", zap.Error(err))
                _ = d.Nack(false, false)
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func (c *Consumer) handleMessage(body []byte) error {
    ev, err := DecodeChatEvent(body)
    if err != nil {
        return err
    }
    c.Log.Info("chat message audited",
        zap.String("received_at", ev.ReceivedAt),
        zap.String("remote_ip", ev.RemoteIP),
        zap.String("request_id", ev.RequestID),
        zap.String("message", ev.Message),
        zap.String("reply", ev.Reply),
    )
    return nil
}

// DecodeChatEvent parses a message body.  Bodies without a received_at
// timestamp are rejected.
func DecodeChatEvent(body []byte) (ChatEvent, error) {
    var ev ChatEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return ChatEvent{}, fmt.Errorf("unmarshal: %w", err)
    }
    if ev.ReceivedAt == "" {
        return ChatEvent{}, errors.New("event has no received_at")
    }
    return ev, nil
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
