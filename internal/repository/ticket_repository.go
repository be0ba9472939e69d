package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/seat-reservation-engine/internal/engine"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// TicketRepo stores completed sales.  It is an engine.SaleSink and the
// engine.SoldSource a restarted server seeds sold seats from.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo constructs a TicketRepo with the given DB handle.
func NewTicketRepo(db *sql.DB) *TicketRepo {
	return &TicketRepo{db: db}
}

// TicketsSold records the tickets of one checkout.  Re-delivering the same
// tickets is a no-op; a different ticket for an already recorded seat is
// ErrConflict.
func (r *TicketRepo) TicketsSold(ctx context.Context, ev engine.TicketsSold) error {
	const op = "repository.TicketRepo.TicketsSold"

	if len(ev.Tickets) == 0 {
		return nil
	}
	query := `INSERT IGNORE INTO tickets (id, event_id, seat_id, buyer_id, price_cents, sold_at) VALUES `
	args := make([]interface{}, 0, len(ev.Tickets)*6)
	for i, t := range ev.Tickets {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?)"
		args = append(args, t.ID, t.Seat.EventID, t.Seat.SeatID, t.BuyerID, t.PriceCents, t.SoldAt.UTC())
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && int(n) < len(ev.Tickets) {
		// some rows existed already; they must be these same tickets
		return r.verify(ctx, ev.Tickets)
	}
	return nil
}

func (r *TicketRepo) verify(ctx context.Context, tickets []model.Ticket) error {
	const q = `SELECT id FROM tickets WHERE event_id = ? AND seat_id = ?`
	for _, t := range tickets {
		var id string
		if err := r.db.QueryRowContext(ctx, q, t.Seat.EventID, t.Seat.SeatID).Scan(&id); err != nil {
			return fmt.Errorf("repository.TicketRepo.verify: %w", err)
		}
		if id != t.ID {
			return fmt.Errorf("repository.TicketRepo.verify: seat %s: %w", t.Seat, ErrConflict)
		}
	}
	return nil
}

// SoldTickets lists every recorded ticket.
func (r *TicketRepo) SoldTickets(ctx context.Context) ([]model.Ticket, error) {
	const q = `SELECT id, event_id, seat_id, buyer_id, price_cents, sold_at
	           FROM tickets
	           ORDER BY sold_at, id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repository.TicketRepo.SoldTickets: %w", err)
	}
	defer rows.Close()

	var out []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.Seat.EventID, &t.Seat.SeatID, &t.BuyerID, &t.PriceCents, &t.SoldAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
