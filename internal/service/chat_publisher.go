// Package service publishes chat events to RabbitMQ.  Publishing happens on
// a background goroutine so that a slow or absent broker never delays the
// HTTP response; failures are logged and the event is dropped.
package service

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"

    q "github.com/tim/chat-echo/internal/queue"
)

// ErrStopped is returned by Stop when called twice.
var ErrStopped = errors.New("publisher already stopped")

// Sender delivers a single event to the broker.
type Sender interface {
    Send(ctx context.Context, event q.ChatEvent) error
}

// Incrementer counts dropped events.  prometheus.Counter satisfies it.
type Incrementer interface {
    Inc()
}

// AMQPSender publishes each event as a persistent JSON message to a durable
// queue on the default exchange.  A connection is dialled per event.
type AMQPSender struct {
    URL         string
    Queue       string
    DialTimeout time.Duration
}

// Send dials the broker, declares the queue and publishes event.
func (s *AMQPSender) Send(ctx context.Context, event q.ChatEvent) error {
    timeout := s.DialTimeout
    if timeout <= 0 {
        timeout = 2 * time.Second
    }
    conn, err := amqp.DialConfig(s.URL, amqp.Config{Dial: amqp.DefaultDial(timeout)})
    if err != nil {
        return fmt.Errorf("rabbitmq dial: %w", err)
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("rabbitmq channel: %w", err)
    }
    defer func() { _ = ch.Close() }()

    // Idempotent; durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(
        s.Queue, // name
        true,    // durable
        false,   // autoDelete
        false,   // exclusive
        false,   // noWait
        nil,     // args
    ); err != nil {
        return fmt.Errorf("rabbitmq queue declare: %w", err)
    }

    body, err := json.Marshal(event)
    if err != nil {
        return fmt.Errorf("marshal event: %w", err)
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx,
        "",      // default exchange
        s.Queue, // routing key = queue name
        false,   // mandatory
        false,   // immediate
        pub,
    ); err != nil {
        return fmt.Errorf("rabbitmq publish: %w", err)
    }
    return nil
}

// ChatPublisher buffers events in memory and hands them to a Sender from a
// single goroutine.  Publish never blocks.
type ChatPublisher struct {
    sender  Sender
    log     *zap.Logger
    dropped Incrementer

    mu      sync.RWMutex
    stopped bool
    events  chan q.ChatEvent
    done    chan struct{}
}

// NewChatPublisher returns a publisher holding up to buffer pending events.
// dropped may be nil.
func NewChatPublisher(sender Sender, buffer int, log *zap.Logger, dropped Incrementer) *ChatPublisher {
    if buffer < 1 {
        buffer = 1
    }
    return &ChatPublisher{
        sender:  sender,
        log:     log,
        dropped: dropped,
        events:  make(chan q.ChatEvent, buffer),
        done:    make(chan struct{}),
    }
}

// Start launches the delivery goroutine.
func (p *ChatPublisher) Start() {
    go p.run()
}

func (p *ChatPublisher) run() {
    defer close(p.done)
    for ev := range p.events {
        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        if err := p.sender.Send(ctx, ev); err != nil {
            p.log.Warn("chat event publish failed", zap.Error(err))
        }
        cancel()
    }
}

// Publish enqueues event and reports whether it was accepted.  Events are
// dropped when the buffer is full or the publisher has been stopped.
func (p *ChatPublisher) Publish(event q.ChatEvent) bool {
    p.mu.RLock()
    defer p.mu.RUnlock()
    if p.stopped {
        p.drop("stopped")
        return false
    }
    select {
    case p.events <- event:
        return true
    default:
        p.drop("buffer full")
        return false
    }
}

func (p *ChatPublisher) drop(reason string) {
    if p.dropped != nil {
        p.dropped.Inc()
    }
    p.log.Debug("chat event dropped", zap.String("reason", reason))
}

// Stop refuses new events, then waits until the pending ones are delivered
// or ctx is done.
func (p *ChatPublisher) Stop(ctx context.Context) error {
    p.mu.Lock()
    if p.stopped {
        p.mu.Unlock()
        return ErrStopped
    }
    p.stopped = true
    close(p.events)
    p.mu.Unlock()

    select {
    case <-p.done:
        return nil
    case <-ctx.Done():
        return fmt.Errorf("drain chat events: %w", ctx.Err())
    }
}
