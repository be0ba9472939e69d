// Package ledger is the single source of truth for seat state.  Every
// mutation is a compare-and-swap style transition on one seat, serialized
// per seat so that no two callers can transition the same seat at the same
// time.  Operations on different seats never contend with each other.
//
// Expiry is re-validated at the moment of every transition, so correctness
// does not depend on the background sweep; the sweep only returns abandoned
// seats to the pool promptly.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

var (
	// ErrNotFound is returned for seats or events the ledger has never seen.
	ErrNotFound = errors.New("seat not found")
	// ErrConflict is returned when the seat is not available to this buyer
	// right now: held by someone else, already sold, or not held at all.
	ErrConflict = errors.New("seat conflict")
	// ErrExpired is returned by ConfirmSale when the buyer's hold lapsed.
	ErrExpired = errors.New("hold expired")
	// ErrInvalid is returned for malformed arguments (empty buyer, non-positive TTL).
	ErrInvalid = errors.New("invalid argument")
	// ErrUnavailable wraps storage failures.  The seat is left exactly as it
	// was before the failed call.
	ErrUnavailable = errors.New("ledger unavailable")
)

// Reservation is the outcome of a successful TryReserve.
type Reservation struct {
	Seat      model.SeatRef
	ExpiresAt time.Time
	// Refreshed is true when the buyer already held the seat and only the
	// expiry moved.
	Refreshed bool
}

// Ledger is the operation set every backend implements.
type Ledger interface {
	// Seed registers seats at event setup.  Seats that already exist are
	// left untouched.  Only available and sold seats may be seeded.
	Seed(ctx context.Context, seats []model.Seat) error

	GetSeat(ctx context.Context, ref model.SeatRef) (model.Seat, error)
	Seats(ctx context.Context, eventID string) ([]model.Seat, error)

	TryReserve(ctx context.Context, ref model.SeatRef, buyerID string, ttl time.Duration) (Reservation, error)
	ConfirmSale(ctx context.Context, ref model.SeatRef, buyerID, ticketID string) (string, error)
	Release(ctx context.Context, ref model.SeatRef, buyerID string) error

	// VoidSale undoes a sale made moments ago by a checkout that could not
	// complete.  It only succeeds for the exact ticket issued by that
	// checkout and restores the hold until restoreUntil (or frees the seat
	// if that has already passed).  It is not a refund path.
	VoidSale(ctx context.Context, ref model.SeatRef, buyerID, ticketID string, restoreUntil time.Time) error

	// SweepExpired returns every reserved seat whose hold lapsed at now to
	// available and reports how many were reclaimed.
	SweepExpired(ctx context.Context, now time.Time) (int, error)

	// HeldBy lists the seats whose stored state is reserved by buyerID,
	// including lapsed holds not yet reclaimed, in the order they were
	// first held.
	HeldBy(ctx context.Context, buyerID string) ([]model.Seat, error)
}

// Cause names why a transition happened.
type Cause string

const (
	CauseReserve Cause = "reserve"
	CauseRefresh Cause = "refresh"
	CauseReclaim Cause = "reclaim"
	CauseConfirm Cause = "confirm"
	CauseRelease Cause = "release"
	CauseExpire  Cause = "expire"
	CauseVoid    Cause = "void"
)

// Transition describes one successful state change of a seat.
type Transition struct {
	Seat     model.SeatRef
	From     model.SeatStatus
	To       model.SeatStatus
	BuyerID  string
	Previous string // previous holder when a lapsed hold was reclaimed or expired
	At       time.Time
	Cause    Cause
}

// Observer receives transitions after they are committed.  Observers must
// not call back into the ledger and must not block.
type Observer interface {
	Observe(Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Transition)

func (f ObserverFunc) Observe(t Transition) { f(t) }

// Observers fans a transition out to several observers.
type Observers []Observer

func (o Observers) Observe(t Transition) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(t)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(Transition) {}

func cloneSeat(s model.Seat) model.Seat {
	if s.ReservedUntil != nil {
		until := *s.ReservedUntil
		s.ReservedUntil = &until
	}
	return s
}
