package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/seat-reservation-engine/internal/catalog"
	"github.com/iliyamo/seat-reservation-engine/internal/ledger"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("seat no longer available")
	ErrExpired         = errors.New("hold expired, please select again")
	ErrPartialConflict = errors.New("some seats could not be held")
	ErrEmpty           = errors.New("cart is empty")
	ErrExpiredCart     = errors.New("cart contains expired holds")
	ErrPolicyViolation = errors.New("policy violation")
	ErrUnavailable     = errors.New("reservation service unavailable")
)

// PartialConflictError reports a multi-seat hold that could not be granted
// in full.  Nothing newly reserved by the call survives it, so Succeeded is
// always empty; Failed lists the seats that were taken.
type PartialConflictError struct {
	Succeeded []model.SeatRef
	Failed    []model.SeatRef
}

func (e *PartialConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPartialConflict, joinRefs(e.Failed))
}

func (e *PartialConflictError) Is(target error) bool { return target == ErrPartialConflict }

// ExpiredCartError reports the cart members whose holds lapsed before
// checkout could sell them.
type ExpiredCartError struct {
	Seats []model.SeatRef
}

func (e *ExpiredCartError) Error() string {
	return fmt.Sprintf("%s: %s", ErrExpiredCart, joinRefs(e.Seats))
}

func (e *ExpiredCartError) Is(target error) bool { return target == ErrExpiredCart }

func joinRefs(refs []model.SeatRef) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}

// policy builds an ErrPolicyViolation with a reason.
func policy(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPolicyViolation, fmt.Sprintf(format, args...))
}

// mapErr translates ledger and catalog errors into the engine taxonomy.
// Storage failures and expired deadlines both surface as ErrUnavailable
// with the cause kept in the chain.
func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, catalog.ErrEventNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, ledger.ErrConflict):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case errors.Is(err, ledger.ErrExpired):
		return fmt.Errorf("%s: %w", op, ErrExpired)
	case errors.Is(err, ledger.ErrInvalid):
		return fmt.Errorf("%s: %w: %w", op, ErrPolicyViolation, err)
	case errors.Is(err, ledger.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
