package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/seat-reservation-engine/internal/lib/logger/sl"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// TicketsSold is emitted once per successful checkout.
type TicketsSold struct {
	BuyerID    string         `json:"buyer_id"`
	Tickets    []model.Ticket `json:"tickets"`
	TotalCents uint32         `json:"total_cents"`
	At         time.Time      `json:"at"`
}

// SaleSink receives completed sales: the MySQL ticket store and the
// message queue publisher.  A sink failure is logged and never undoes the
// sale; the ledger is the record of who owns a seat.
type SaleSink interface {
	TicketsSold(ctx context.Context, ev TicketsSold) error
}

// SaleSinkFunc adapts a function to SaleSink.
type SaleSinkFunc func(ctx context.Context, ev TicketsSold) error

func (f SaleSinkFunc) TicketsSold(ctx context.Context, ev TicketsSold) error { return f(ctx, ev) }

func (e *Engine) publish(ctx context.Context, ev TicketsSold) {
	for _, sink := range e.sinks {
		if sink == nil {
			continue
		}
		sctx, cancel := e.detached(ctx)
		err := sink.TicketsSold(sctx, ev)
		cancel()
		if err != nil {
			e.log.Error("sale sink failed", slog.String("buyer_id", ev.BuyerID), slog.Int("tickets", len(ev.Tickets)), sl.Err(err))
		}
	}
}

// SoldSource lists tickets already sold, so a restarted server can mark
// their seats sold before taking new holds.
type SoldSource interface {
	SoldTickets(ctx context.Context) ([]model.Ticket, error)
}

// Bootstrap seeds the ledger with every catalog event and marks the seats
// of previously sold tickets as sold.  sold may be nil.  Seats already in
// the ledger are left alone, so running it against a shared ledger is safe.
func (e *Engine) Bootstrap(ctx context.Context, sold SoldSource) (int, error) {
	const op = "engine.Bootstrap"

	owners := make(map[model.SeatRef]model.Ticket)
	if sold != nil {
		tickets, err := sold.SoldTickets(ctx)
		if err != nil {
			return 0, mapErr(op, err)
		}
		for _, t := range tickets {
			owners[t.Seat] = t
		}
	}

	events, err := e.catalog.Events(ctx)
	if err != nil {
		return 0, mapErr(op, err)
	}
	seeded := 0
	for _, ev := range events {
		seats, err := e.catalog.Seats(ctx, ev.ID)
		if err != nil {
			return seeded, mapErr(op, err)
		}
		for i := range seats {
			seats[i].Status = model.SeatAvailable
			if t, ok := owners[seats[i].Ref]; ok {
				seats[i].Status = model.SeatSold
				seats[i].Holder = t.BuyerID
				seats[i].TicketID = t.ID
			}
		}
		if err := e.ledger.Seed(ctx, seats); err != nil {
			return seeded, mapErr(op, err)
		}
		seeded += len(seats)
		e.log.Debug("event seeded", slog.String("event_id", ev.ID), slog.Int("seats", len(seats)))
	}
	e.log.Info("ledger seeded", slog.Int("events", len(events)), slog.Int("seats", seeded), slog.Int("sold", len(owners)))
	return seeded, nil
}
