// Package queue moves completed sales over RabbitMQ: the server publishes a
// TicketsSoldEvent per checkout and the auditor consumes them.
package queue

import (
    "time"

    "github.com/iliyamo/seat-reservation-engine/internal/engine"
)

// DefaultQueue is the durable queue sales are published to.
const DefaultQueue = "tickets.sold"

// TicketsSoldEvent is published when a checkout completes.  It carries
// enough for downstream consumers to log, notify or run analytics without
// querying the ledger.
type TicketsSoldEvent struct {
    BuyerID    string       `json:"buyer_id"`
    Tickets    []TicketLine `json:"tickets"`
    TotalCents uint32       `json:"total_cents"`
    SoldAt     string       `json:"sold_at"`
}

// TicketLine is one ticket of a TicketsSoldEvent.
type TicketLine struct {
    TicketID   string `json:"ticket_id"`
    EventID    string `json:"event_id"`
    SeatID     string `json:"seat_id"`
    PriceCents uint32 `json:"price_cents"`
}

// NewTicketsSoldEvent converts an engine sale into its wire form.
func NewTicketsSoldEvent(ev engine.TicketsSold) TicketsSoldEvent {
    out := TicketsSoldEvent{
        BuyerID:    ev.BuyerID,
        Tickets:    make([]TicketLine, 0, len(ev.Tickets)),
        TotalCents: ev.TotalCents,
        SoldAt:     ev.At.UTC().Format(time.RFC3339),
    }
    for _, t := range ev.Tickets {
        out.Tickets = append(out.Tickets, TicketLine{
            TicketID:   t.ID,
            EventID:    t.Seat.EventID,
            SeatID:     t.Seat.SeatID,
            PriceCents: t.PriceCents,
        })
    }
    return out
}
