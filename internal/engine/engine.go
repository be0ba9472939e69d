// Package engine is the reservation facade buyers talk to.  It enforces
// hold policy (TTL bounds, cart capacity), makes multi-seat holds
// all-or-nothing, and turns a cart into tickets at checkout.  Seat state is
// owned by the ledger; the engine keeps no state of its own.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/seat-reservation-engine/internal/catalog"
	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/ledger"
	"github.com/iliyamo/seat-reservation-engine/internal/lib/logger/sl"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// Config holds the hold policy.
type Config struct {
	DefaultHoldTTL  time.Duration
	MaxHoldTTL      time.Duration
	MaxSeatsPerCart int
	// OpTimeout bounds each engine call and each compensation step.
	OpTimeout time.Duration
}

// DefaultConfig mirrors the documented environment defaults.
func DefaultConfig() Config {
	return Config{
		DefaultHoldTTL:  5 * time.Minute,
		MaxHoldTTL:      15 * time.Minute,
		MaxSeatsPerCart: 10,
		OpTimeout:       2 * time.Second,
	}
}

// HoldResult is returned by a successful Hold.
type HoldResult struct {
	Holds []model.Hold `json:"holds"`
	Cart  model.Cart   `json:"cart"`
}

// CheckoutResult is returned by a successful Checkout.
type CheckoutResult struct {
	Tickets    []model.Ticket `json:"tickets"`
	TotalCents uint32         `json:"total_cents"`
}

type Engine struct {
	cfg     Config
	ledger  ledger.Ledger
	catalog catalog.Catalog
	clock   clock.Clock
	sinks   []SaleSink
	log     *slog.Logger
}

// New builds an engine.  Zero values in cfg fall back to DefaultConfig.
func New(cfg Config, l ledger.Ledger, cat catalog.Catalog, clk clock.Clock, log *slog.Logger, sinks ...SaleSink) *Engine {
	def := DefaultConfig()
	if cfg.DefaultHoldTTL <= 0 {
		cfg.DefaultHoldTTL = def.DefaultHoldTTL
	}
	if cfg.MaxHoldTTL <= 0 {
		cfg.MaxHoldTTL = def.MaxHoldTTL
	}
	if cfg.DefaultHoldTTL > cfg.MaxHoldTTL {
		cfg.DefaultHoldTTL = cfg.MaxHoldTTL
	}
	if cfg.MaxSeatsPerCart <= 0 {
		cfg.MaxSeatsPerCart = def.MaxSeatsPerCart
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = def.OpTimeout
	}
	return &Engine{
		cfg:     cfg,
		ledger:  l,
		catalog: cat,
		clock:   clk,
		sinks:   sinks,
		log:     log.With(slog.String("component", "engine")),
	}
}

// Config returns the effective policy.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.OpTimeout)
}

// detached returns a context that survives cancellation of ctx, used for
// compensation that must run even when the caller has gone away.
func (e *Engine) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.cfg.OpTimeout)
}

// Hold reserves every seat in seatIDs for buyerID, or none of them.
//
// A ttl of zero uses the default TTL.  Seats the buyer already holds are
// refreshed and count once towards the cart limit.  When any seat is taken
// by someone else, every seat newly reserved by this call is released again
// and a *PartialConflictError lists the seats that were taken.
func (e *Engine) Hold(ctx context.Context, eventID string, seatIDs []string, buyerID string, ttl time.Duration) (HoldResult, error) {
	const op = "engine.Hold"

	if buyerID == "" {
		return HoldResult{}, policy("buyer id is required")
	}
	switch {
	case ttl <= 0:
		ttl = e.cfg.DefaultHoldTTL
	case ttl > e.cfg.MaxHoldTTL:
		return HoldResult{}, policy("ttl %s exceeds the maximum of %s", ttl, e.cfg.MaxHoldTTL)
	}
	refs := dedupe(eventID, seatIDs)
	if len(refs) == 0 {
		return HoldResult{}, policy("no seats requested")
	}

	ctx, cancel := e.bounded(ctx)
	defer cancel()

	if err := e.checkSeatsExist(ctx, eventID, refs); err != nil {
		return HoldResult{}, mapErr(op, err)
	}

	held, err := e.ledger.HeldBy(ctx, buyerID)
	if err != nil {
		return HoldResult{}, mapErr(op, err)
	}
	now := e.clock.Now()
	active := make(map[model.SeatRef]bool, len(held))
	for _, s := range held {
		if s.HeldBy(buyerID, now) {
			active[s.Ref] = true
		}
	}
	adding := 0
	for _, ref := range refs {
		if !active[ref] {
			adding++
		}
	}
	if len(active)+adding > e.cfg.MaxSeatsPerCart {
		return HoldResult{}, policy("cart would hold %d seats, the limit is %d", len(active)+adding, e.cfg.MaxSeatsPerCart)
	}

	var (
		holds  = make([]model.Hold, 0, len(refs))
		fresh  []model.SeatRef
		failed []model.SeatRef
	)
	for _, ref := range refs {
		res, err := e.ledger.TryReserve(ctx, ref, buyerID, ttl)
		switch {
		case err == nil:
			holds = append(holds, model.Hold{Seat: ref, BuyerID: buyerID, ExpiresAt: res.ExpiresAt})
			if !res.Refreshed {
				fresh = append(fresh, ref)
			}
		case errors.Is(err, ledger.ErrConflict):
			failed = append(failed, ref)
		default:
			e.releaseAll(ctx, buyerID, fresh)
			e.log.Warn("hold aborted", slog.String("buyer_id", buyerID), slog.String("seat", ref.String()), sl.Err(err))
			return HoldResult{}, mapErr(op, err)
		}
	}

	if len(failed) > 0 {
		e.releaseAll(ctx, buyerID, fresh)
		e.log.Info("hold rejected",
			slog.String("buyer_id", buyerID),
			slog.String("event_id", eventID),
			slog.Int("requested", len(refs)),
			slog.Int("conflicts", len(failed)),
		)
		return HoldResult{}, &PartialConflictError{Succeeded: []model.SeatRef{}, Failed: failed}
	}

	e.log.Info("seats held",
		slog.String("buyer_id", buyerID),
		slog.String("event_id", eventID),
		slog.Int("seats", len(holds)),
		slog.Duration("ttl", ttl),
	)

	cart, err := e.Cart(ctx, buyerID)
	if err != nil {
		// the holds stand; only the projection failed
		e.log.Warn("cart read after hold failed", slog.String("buyer_id", buyerID), sl.Err(err))
		return HoldResult{Holds: holds, Cart: model.Cart{BuyerID: buyerID}}, nil
	}
	return HoldResult{Holds: holds, Cart: cart}, nil
}

func (e *Engine) checkSeatsExist(ctx context.Context, eventID string, refs []model.SeatRef) error {
	seats, err := e.catalog.Seats(ctx, eventID)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(seats))
	for _, s := range seats {
		known[s.Ref.SeatID] = true
	}
	for _, ref := range refs {
		if !known[ref.SeatID] {
			return ledger.ErrNotFound
		}
	}
	return nil
}

// releaseAll releases seats on behalf of buyerID: the fresh seats of an
// aborted Hold, or the lapsed members of a cart that failed checkout.  A
// seat that can no longer be released was reclaimed already, which is the
// state wanted anyway.
func (e *Engine) releaseAll(ctx context.Context, buyerID string, refs []model.SeatRef) {
	if len(refs) == 0 {
		return
	}
	ctx, cancel := e.detached(ctx)
	defer cancel()

	for _, ref := range refs {
		err := e.ledger.Release(ctx, ref, buyerID)
		if err != nil && !errors.Is(err, ledger.ErrConflict) {
			e.log.Error("release failed", slog.String("buyer_id", buyerID), slog.String("seat", ref.String()), sl.Err(err))
		}
	}
}

// Checkout sells every seat in the buyer's cart, or none of them.
func (e *Engine) Checkout(ctx context.Context, buyerID string) (CheckoutResult, error) {
	const op = "engine.Checkout"

	if buyerID == "" {
		return CheckoutResult{}, policy("buyer id is required")
	}
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	held, err := e.ledger.HeldBy(ctx, buyerID)
	if err != nil {
		return CheckoutResult{}, mapErr(op, err)
	}
	if len(held) == 0 {
		return CheckoutResult{}, ErrEmpty
	}

	now := e.clock.Now()
	var lapsed []model.SeatRef
	for _, s := range held {
		if !s.HeldBy(buyerID, now) {
			lapsed = append(lapsed, s.Ref)
		}
	}
	if len(lapsed) > 0 {
		// drop the dead members now so a retry sees only live holds
		e.releaseAll(ctx, buyerID, lapsed)
		return CheckoutResult{}, &ExpiredCartError{Seats: lapsed}
	}

	var (
		sold      = make([]model.Ticket, 0, len(held))
		soldSeats = make([]model.Seat, 0, len(held))
		total     uint32
	)
	for _, s := range held {
		issued := uuid.NewString()
		ticketID, err := e.ledger.ConfirmSale(ctx, s.Ref, buyerID, issued)
		if err != nil {
			e.void(ctx, buyerID, soldSeats, sold)
			if errors.Is(err, ledger.ErrExpired) || errors.Is(err, ledger.ErrConflict) {
				e.log.Info("checkout lost a hold", slog.String("buyer_id", buyerID), slog.String("seat", s.Ref.String()), sl.Err(err))
				return CheckoutResult{}, &ExpiredCartError{Seats: []model.SeatRef{s.Ref}}
			}
			e.log.Warn("checkout aborted", slog.String("buyer_id", buyerID), sl.Err(err))
			return CheckoutResult{}, mapErr(op, err)
		}
		if ticketID != issued {
			// a concurrent checkout by the same buyer sold this seat; it
			// reports the ticket, this call does not
			continue
		}
		sold = append(sold, model.Ticket{
			ID:         ticketID,
			Seat:       s.Ref,
			BuyerID:    buyerID,
			PriceCents: s.PriceCents,
		})
		soldSeats = append(soldSeats, s)
		total += s.PriceCents
	}
	if len(sold) == 0 {
		return CheckoutResult{}, ErrEmpty
	}

	soldAt := e.clock.Now()
	for i := range sold {
		sold[i].SoldAt = soldAt
	}
	e.log.Info("checkout completed",
		slog.String("buyer_id", buyerID),
		slog.Int("tickets", len(sold)),
		slog.Int("total_cents", int(total)),
	)

	e.publish(ctx, TicketsSold{BuyerID: buyerID, Tickets: sold, TotalCents: total, At: soldAt})
	return CheckoutResult{Tickets: sold, TotalCents: total}, nil
}

// void reverts the sales made by a checkout that could not complete.  Each
// seat goes back to the hold it had before checkout.
func (e *Engine) void(ctx context.Context, buyerID string, seats []model.Seat, tickets []model.Ticket) {
	if len(tickets) == 0 {
		return
	}
	ctx, cancel := e.detached(ctx)
	defer cancel()

	for i, t := range tickets {
		var restore time.Time
		if until := seats[i].ReservedUntil; until != nil {
			restore = *until
		}
		if err := e.ledger.VoidSale(ctx, t.Seat, buyerID, t.ID, restore); err != nil {
			e.log.Error("checkout compensation failed",
				slog.String("buyer_id", buyerID),
				slog.String("seat", t.Seat.String()),
				slog.String("ticket_id", t.ID),
				sl.Err(err),
			)
		}
	}
}

// Cancel releases one of the buyer's holds.
func (e *Engine) Cancel(ctx context.Context, buyerID string, ref model.SeatRef) error {
	const op = "engine.Cancel"

	ctx, cancel := e.bounded(ctx)
	defer cancel()

	if err := e.ledger.Release(ctx, ref, buyerID); err != nil {
		return mapErr(op, err)
	}
	e.log.Info("hold cancelled", slog.String("buyer_id", buyerID), slog.String("seat", ref.String()))
	return nil
}

// ClearCart releases every seat the buyer holds and reports how many were
// released.  Seats that lapsed and were reclaimed concurrently are skipped.
func (e *Engine) ClearCart(ctx context.Context, buyerID string) (int, error) {
	const op = "engine.ClearCart"

	ctx, cancel := e.bounded(ctx)
	defer cancel()

	held, err := e.ledger.HeldBy(ctx, buyerID)
	if err != nil {
		return 0, mapErr(op, err)
	}
	released := 0
	for _, s := range held {
		err := e.ledger.Release(ctx, s.Ref, buyerID)
		switch {
		case err == nil:
			released++
		case errors.Is(err, ledger.ErrConflict):
		default:
			return released, mapErr(op, err)
		}
	}
	if released > 0 {
		e.log.Info("cart cleared", slog.String("buyer_id", buyerID), slog.Int("released", released))
	}
	return released, nil
}

// Seat returns one seat as buyers should see it now.
func (e *Engine) Seat(ctx context.Context, ref model.SeatRef) (model.Seat, error) {
	const op = "engine.Seat"

	ctx, cancel := e.bounded(ctx)
	defer cancel()

	s, err := e.ledger.GetSeat(ctx, ref)
	if err != nil {
		return model.Seat{}, mapErr(op, err)
	}
	return s.Effective(e.clock.Now()), nil
}

// EventSeats returns the seat map of an event as buyers should see it now.
func (e *Engine) EventSeats(ctx context.Context, eventID string) ([]model.Seat, error) {
	const op = "engine.EventSeats"

	ctx, cancel := e.bounded(ctx)
	defer cancel()

	seats, err := e.ledger.Seats(ctx, eventID)
	if err != nil {
		return nil, mapErr(op, err)
	}
	now := e.clock.Now()
	for i := range seats {
		seats[i] = seats[i].Effective(now)
	}
	return seats, nil
}

// Event returns catalog data for one event.
func (e *Engine) Event(ctx context.Context, eventID string) (model.Event, error) {
	const op = "engine.Event"

	ev, err := e.catalog.Event(ctx, eventID)
	if err != nil {
		return model.Event{}, mapErr(op, err)
	}
	return ev, nil
}

func dedupe(eventID string, seatIDs []string) []model.SeatRef {
	seen := make(map[string]bool, len(seatIDs))
	out := make([]model.SeatRef, 0, len(seatIDs))
	for _, id := range seatIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, model.SeatRef{EventID: eventID, SeatID: id})
	}
	return out
}
