package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the catalog and ticket tables.  Seat state is not stored
// here; MySQL only keeps reference data and completed sales.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id          VARCHAR(64)  NOT NULL PRIMARY KEY,
		name        VARCHAR(255) NOT NULL,
		description TEXT         NOT NULL,
		venue       VARCHAR(255) NOT NULL DEFAULT '',
		starts_at   DATETIME     NOT NULL,
		capacity    INT UNSIGNED NOT NULL DEFAULT 0,
		created_at  TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS event_seats (
		event_id    VARCHAR(64)  NOT NULL,
		seat_id     VARCHAR(32)  NOT NULL,
		position    INT UNSIGNED NOT NULL,
		row_label   VARCHAR(8)   NOT NULL,
		seat_number INT UNSIGNED NOT NULL,
		price_cents INT UNSIGNED NOT NULL,
		PRIMARY KEY (event_id, seat_id),
		KEY idx_event_position (event_id, position),
		CONSTRAINT fk_event_seats_event FOREIGN KEY (event_id) REFERENCES events (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id          CHAR(36)     NOT NULL PRIMARY KEY,
		event_id    VARCHAR(64)  NOT NULL,
		seat_id     VARCHAR(32)  NOT NULL,
		buyer_id    VARCHAR(128) NOT NULL,
		price_cents INT UNSIGNED NOT NULL,
		sold_at     DATETIME     NOT NULL,
		UNIQUE KEY uq_ticket_seat (event_id, seat_id),
		KEY idx_ticket_buyer (buyer_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates missing tables.  It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	const op = "database.Migrate"

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}
