package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "log/slog"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/seat-reservation-engine/internal/engine"
)

// Publisher sends TicketsSoldEvents to a durable queue.  It implements
// engine.SaleSink.  The connection is opened lazily and re-dialled after a
// failure, so a broker outage costs the messages sent during it and
// nothing else.
type Publisher struct {
    url   string
    queue string
    log   *slog.Logger

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

// NewPublisher returns a publisher for url.  queue defaults to DefaultQueue.
func NewPublisher(url, queue string, log *slog.Logger) *Publisher {
    if queue == "" {
        queue = DefaultQueue
    }
    return &Publisher{url: url, queue: queue, log: log.With(slog.String("component", "publisher"))}
}

// channel returns an open channel with the queue declared.  Called with mu held.
func (p *Publisher) channel() (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() {
        return p.ch, nil
    }
    p.closeLocked()

    conn, err := amqp.Dial(p.url)
    if err != nil {
        return nil, fmt.Errorf("dial: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, fmt.Errorf("channel open: %w", err)
    }
    // durable so messages survive broker restarts
    if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return nil, fmt.Errorf("queue declare: %w", err)
    }
    p.conn, p.ch = conn, ch
    return ch, nil
}

// TicketsSold publishes one checkout.
func (p *Publisher) TicketsSold(ctx context.Context, ev engine.TicketsSold) error {
    const op = "queue.Publisher.TicketsSold"

    body, err := json.Marshal(NewTicketsSoldEvent(ev))
    if err != nil {
        return fmt.Errorf("%s: %w", op, err)
    }

    p.mu.Lock()
    defer p.mu.Unlock()

    ch, err := p.channel()
    if err != nil {
        return fmt.Errorf("%s: %w", op, err)
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    // default exchange, routing key = queue name
    if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
        p.closeLocked()
        return fmt.Errorf("%s: %w", op, err)
    }
    p.log.Debug("sale published", slog.String("buyer_id", ev.BuyerID), slog.Int("tickets", len(ev.Tickets)))
    return nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.closeLocked()
    return nil
}

func (p *Publisher) closeLocked() {
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        _ = p.conn.Close()
        p.conn = nil
    }
}
