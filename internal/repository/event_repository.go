package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/seat-reservation-engine/internal/catalog"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// EventRepo is the MySQL catalog.  It implements catalog.Catalog.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo constructs an EventRepo with the given DB handle.
func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

// Event fetches one event.  Unknown IDs yield catalog.ErrEventNotFound.
func (r *EventRepo) Event(ctx context.Context, id string) (model.Event, error) {
	const q = `SELECT id, name, description, venue, starts_at, capacity
	           FROM events
	           WHERE id = ?`
	var ev model.Event
	err := r.db.QueryRowContext(ctx, q, id).Scan(&ev.ID, &ev.Name, &ev.Description, &ev.Venue, &ev.Date, &ev.Capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, catalog.ErrEventNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("repository.EventRepo.Event: %w", err)
	}
	return ev, nil
}

// Events lists every event ordered by start time.
func (r *EventRepo) Events(ctx context.Context) ([]model.Event, error) {
	const q = `SELECT id, name, description, venue, starts_at, capacity
	           FROM events
	           ORDER BY starts_at, id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repository.EventRepo.Events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.Description, &ev.Venue, &ev.Date, &ev.Capacity); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Seats lists the seats of an event in layout order.  An event with no
// seats is reported as unknown.
func (r *EventRepo) Seats(ctx context.Context, eventID string) ([]model.Seat, error) {
	const q = `SELECT seat_id, row_label, seat_number, price_cents
	           FROM event_seats
	           WHERE event_id = ?
	           ORDER BY position`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("repository.EventRepo.Seats: %w", err)
	}
	defer rows.Close()

	var out []model.Seat
	for rows.Next() {
		s := model.Seat{Ref: model.SeatRef{EventID: eventID}, Status: model.SeatAvailable}
		if err := rows.Scan(&s.Ref.SeatID, &s.Row, &s.Number, &s.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, catalog.ErrEventNotFound
	}
	return out, nil
}

// Import writes an event and its seat layout in one transaction.  Event
// details are updated when the event exists; existing seats are kept as
// they are, so importing the same catalog twice changes nothing.
func (r *EventRepo) Import(ctx context.Context, ev model.Event, seats []model.Seat) (err error) {
	const op = "repository.EventRepo.Import"

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	const upsert = `INSERT INTO events (id, name, description, venue, starts_at, capacity)
	                VALUES (?, ?, ?, ?, ?, ?)
	                ON DUPLICATE KEY UPDATE name = VALUES(name), description = VALUES(description),
	                  venue = VALUES(venue), starts_at = VALUES(starts_at), capacity = VALUES(capacity)`
	if _, err = tx.ExecContext(ctx, upsert, ev.ID, ev.Name, ev.Description, ev.Venue, ev.Date.UTC(), len(seats)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(seats) == 0 {
		return nil
	}

	query := `INSERT IGNORE INTO event_seats (event_id, seat_id, position, row_label, seat_number, price_cents) VALUES `
	args := make([]interface{}, 0, len(seats)*6)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?)"
		args = append(args, ev.ID, s.Ref.SeatID, i, s.Row, s.Number, s.PriceCents)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ImportCatalog copies every event of src into MySQL.
func (r *EventRepo) ImportCatalog(ctx context.Context, src catalog.Catalog) (int, error) {
	events, err := src.Events(ctx)
	if err != nil {
		return 0, err
	}
	for i, ev := range events {
		seats, err := src.Seats(ctx, ev.ID)
		if err != nil {
			return i, err
		}
		if err := r.Import(ctx, ev, seats); err != nil {
			return i, err
		}
	}
	return len(events), nil
}
