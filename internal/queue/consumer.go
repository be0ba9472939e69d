package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "log/slog"
    "os"
    "path/filepath"
    "strings"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/seat-reservation-engine/internal/lib/logger/sl"
)

// Consumer reads TicketsSoldEvents and appends one line per sale to an
// audit file.
type Consumer struct {
    url     string
    queue   string
    logPath string
    log     *slog.Logger
}

func NewConsumer(url, queue, logPath string, log *slog.Logger) *Consumer {
    if queue == "" {
        queue = DefaultQueue
    }
    if logPath == "" {
        logPath = filepath.Join("logs", "sales.log")
    }
    return &Consumer{url: url, queue: queue, logPath: logPath, log: log.With(slog.String("component", "consumer"))}
}

// Run consumes until ctx is cancelled, reconnecting with exponential
// backoff (capped at 30s) whenever the broker goes away.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.log.Warn("dial failed", sl.Err(err), slog.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.log.Warn("consume loop ended, reconnecting", sl.Err(err))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.log.Warn("set QoS failed", sl.Err(err))
    }
    if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    c.log.Info("consuming", slog.String("queue", c.queue), slog.String("file", c.logPath))
    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.handle(d.Body); err != nil {
                c.log.Error("handle message failed", sl.Err(err))
                _ = d.Nack(false, false) // do not requeue poison messages
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func (c *Consumer) handle(body []byte) error {
    var ev TicketsSoldEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
        return fmt.Errorf("mkdir: %w", err)
    }
    f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()
    return writeLine(f, ev)
}

func writeLine(w io.Writer, ev TicketsSoldEvent) error {
    seats := make([]string, len(ev.Tickets))
    for i, t := range ev.Tickets {
        seats[i] = t.EventID + "/" + t.SeatID + "#" + t.TicketID
    }
    line := fmt.Sprintf("[%s] Tickets sold | buyer_id=%s | tickets=%d | total=%d cents | seats=[%s]\n",
        ev.SoldAt, ev.BuyerID, len(ev.Tickets), ev.TotalCents, strings.Join(seats, ","))
    if _, err := io.WriteString(w, line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}
