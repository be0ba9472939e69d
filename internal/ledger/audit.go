package ledger

import (
	"context"
	"log/slog"
	"time"
)

// NewAuditLogger returns an Observer that writes every transition to log
// at info level.  Expiries are the bulk of the traffic during a sweep, so
// they are written at debug.
func NewAuditLogger(log *slog.Logger) Observer {
	return ObserverFunc(func(t Transition) {
		level := slog.LevelInfo
		if t.Cause == CauseExpire || t.Cause == CauseRefresh {
			level = slog.LevelDebug
		}
		log.Log(context.Background(), level, "seat transition",
			slog.String("event_id", t.Seat.EventID),
			slog.String("seat_id", t.Seat.SeatID),
			slog.String("from", string(t.From)),
			slog.String("to", string(t.To)),
			slog.String("buyer_id", t.BuyerID),
			slog.String("previous_holder", t.Previous),
			slog.String("cause", string(t.Cause)),
			slog.String("at", t.At.UTC().Format(time.RFC3339Nano)),
		)
	})
}
