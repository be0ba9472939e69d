package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-reservation-engine/internal/catalog"
	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/ledger"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const event = "E"

type suite struct {
	engine *Engine
	ledger *ledger.Memory
	clock  *clock.FakeClock
	sales  *salesRecorder
}

type salesRecorder struct {
	mu  sync.Mutex
	got []TicketsSold
}

func (r *salesRecorder) TicketsSold(_ context.Context, ev TicketsSold) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, ev)
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testCatalog() *catalog.Static {
	cat := catalog.NewStatic()
	cat.Add(model.Event{ID: event, Name: "Opening Night", Date: epoch.Add(48 * time.Hour)},
		catalog.GenerateSeats(event, 10, 10, 1500))
	return cat
}

func newSuite(t *testing.T, cfg Config) suite {
	t.Helper()
	return newSuiteWith(t, cfg, func(l ledger.Ledger) ledger.Ledger { return l })
}

func newSuiteWith(t *testing.T, cfg Config, wrap func(ledger.Ledger) ledger.Ledger) suite {
	t.Helper()
	clk := clock.Fake(epoch)
	mem := ledger.NewMemory(clk, nil)
	sales := &salesRecorder{}
	e := New(cfg, wrap(mem), testCatalog(), clk, discard(), sales)
	_, err := e.Bootstrap(context.Background(), nil)
	require.NoError(t, err)
	return suite{engine: e, ledger: mem, clock: clk, sales: sales}
}

func seat(id string) model.SeatRef { return model.SeatRef{EventID: event, SeatID: id} }

func buyer() string { return "buyer-" + gofakeit.UUID() }

func (s suite) status(t *testing.T, id string) model.Seat {
	t.Helper()
	got, err := s.ledger.GetSeat(context.Background(), seat(id))
	require.NoError(t, err)
	return got
}

func TestHoldAllOrNothing(t *testing.T) {
	s := newSuite(t, Config{})
	ctx := context.Background()
	b1, b2 := buyer(), buyer()

	_, err := s.engine.Hold(ctx, event, []string{"A2"}, b2, time.Minute)
	require.NoError(t, err)

	_, err = s.engine.Hold(ctx, event, []string{"A1", "A2", "A3"}, b1, time.Minute)
	require.ErrorIs(t, err, ErrPartialConflict)

	var pce *PartialConflictError
	require.True(t, errors.As(err, &pce))
	assert.Empty(t, pce.Succeeded)
	assert.Equal(t, []model.SeatRef{seat("A2")}, pce.Failed)

	assert.Equal(t, model.SeatAvailable, s.status(t, "A1").Status)
	assert.Equal(t, model.SeatAvailable, s.status(t, "A3").Status)
	a2 := s.status(t, "A2")
	assert.Equal(t, model.SeatReserved, a2.Status)
	assert.Equal(t, b2, a2.Holder)

	cart, err := s.engine.Cart(ctx, b1)
	require.NoError(t, err)
	assert.True(t, cart.Empty())
}

func TestHoldKeepsRefreshedSeatsOnConflict(t *testing.T) {
	s := newSuite(t, Config{})
	ctx := context.Background()
	b1, b2 := buyer(), buyer()

	_, err := s.engine.Hold(ctx, event, []string{"A1"}, b1, time.Minute)
	require.NoError(t, err)
	_, err = s.engine.Hold(ctx, event, []string{"A2"}, b2, time.Minute)
	require.NoError(t, err)

	_, err = s.engine.Hold(ctx, event, []string{"A1", "A2", "A3"}, b1, time.Minute)
	require.ErrorIs(t, err, ErrPartialConflict)

	assert.Equal(t, b1, s.status(t, "A1").Holder, "held before the call, so it stays")
	assert.Equal(t, model.SeatAvailable, s.status(t, "A3").Status)
}

func TestHoldThenCheckout(t *testing.T) {
	s := newSuite(t, Config{})
	ctx := context.Background()
	b := buyer()

	res, err := s.engine.Hold(ctx, event, []string{"A1"}, b, 120*time.Second)
	require.NoError(t, err)
	require.Len(t, res.Holds, 1)
	assert.True(t, res.Holds[0].ExpiresAt.Equal(epoch.Add(120*time.Second)))
	require.Len(t, res.Cart.Items, 1)

	s.clock.Advance(10 * time.Second)
	out, err := s.engine.Checkout(ctx, b)
	require.NoError(t, err)
	require.Len(t, out.Tickets, 1)
	assert.NotEmpty(t, out.Tickets[0].ID)
	assert.Equal(t, uint32(1500), out.TotalCents)
	assert.True(t, out.Tickets[0].SoldAt.Equal(epoch.Add(10*time.Second)))

	a1 := s.status(t, "A1")
	assert.Equal(t, model.SeatSold, a1.Status)
	assert.Equal(t, out.Tickets[0].ID, a1.TicketID)

	cart, err := s.engine.Cart(ctx, b)
	require.NoError(t, err)
	assert.True(t, cart.Empty())
	assert.Nil(t, cart.ExpiresAt)

	require.Len(t, s.sales.got, 1)
	assert.Equal(t, b, s.sales.got[0].BuyerID)
	assert.Equal(t, out.Tickets, s.sales.got[0].Tickets)

	_, err = s.engine.Checkout(ctx, b)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = s.engine.Hold(ctx, event, []string{"A1"}, buyer(), time.Minute)
	assert.ErrorIs(t, err, ErrPartialConflict, "sold seats stay sold")
}

func TestExpiryBeforeCheckout(t *testing.T) {
	t.Run("swept", func(t *testing.T) {
		s := newSuite(t, Config{})
		ctx := context.Background()
		b := buyer()

		_, err := s.engine.Hold(ctx, event, []string{"A1"}, b, 10*time.Second)
		require.NoError(t, err)

		s.clock.Advance(15 * time.Second)
		n, err := s.ledger.SweepExpired(ctx, s.clock.Now())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, model.SeatAvailable, s.status(t, "A1").Status)

		_, err = s.engine.Checkout(ctx, b)
		assert.ErrorIs(t, err, ErrEmpty)
	})

	t.Run("not swept", func(t *testing.T) {
		s := newSuite(t, Config{})
		ctx := context.Background()
		b := buyer()

		_, err := s.engine.Hold(ctx, event, []string{"A1", "A2"}, b, 10*time.Second)
		require.NoError(t, err)
		s.clock.Advance(15 * time.Second)

		_, err = s.engine.Checkout(ctx, b)
		require.ErrorIs(t, err, ErrExpiredCart)
		var ece *ExpiredCartError
		require.True(t, errors.As(err, &ece))
		assert.ElementsMatch(t, []model.SeatRef{seat("A1"), seat("A2")}, ece.Seats)

		for _, id := range []string{"A1", "A2"} {
			assert.NotEqual(t, model.SeatSold, s.status(t, id).Status)
		}
		assert.Empty(t, s.sales.got)
	})
}

func TestCheckoutLeavesActiveHoldsOnPartialExpiry(t *testing.T) {
	s := newSuite(t, Config{})
	ctx := context.Background()
	b := buyer()

	_, err := s.engine.Hold(ctx, event, []string{"A1"}, b, 10*time.Second)
	require.NoError(t, err)
	_, err = s.engine.Hold(ctx, event, []string{"A2"}, b, 5*time.Minute)
	require.NoError(t, err)
	s.clock.Advance(20 * time.Second)

	_, err = s.engine.Checkout(ctx, b)
	require.ErrorIs(t, err, ErrExpiredCart)

	a2 := s.status(t, "A2")
	assert.Equal(t, model.SeatReserved, a2.Status)
	assert.Equal(t, b, a2.Holder)

	// the cart now shows only the live hold and checkout can be retried
	cart, err := s.engine.Cart(ctx, b)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, seat("A2"), cart.Items[0].Seat)

	assert.Equal(t, model.SeatAvailable, s.status(t, "A1").Status, "lapsed member released")
	out, err := s.engine.Checkout(ctx, b)
	require.NoError(t, err)
	assert.Len(t, out.Tickets, 1)
}

func TestIdempotentHoldRefreshes(t *testing.T) {
	s := newSuite(t, Config{})
	ctx := context.Background()
	b := buyer()

	_, err := s.engine.Hold(ctx, event, []string{"A1"}, b, 60*time.Second)
	require.NoError(t, err)
	s.clock.Advance(30 * time.Second)

	res, err := s.engine.Hold(ctx, event, []string{"A1"}, b, 60*time.Second)
	require.NoError(t, err)
	require.Len(t, res.Holds, 1)
	assert.True(t, res.Holds[0].ExpiresAt.Equal(epoch.Add(90*time.Second)))
	assert.Len(t, res.Cart.Items, 1)
}

func TestHoldPolicy(t *testing.T) {
	s := newSuite(t, Config{DefaultHoldTTL: 2 * time.Minute, MaxHoldTTL: 10 * time.Minute, MaxSeatsPerCart: 3})
	ctx := context.Background()
	b := buyer()

	_, err := s.engine.Hold(ctx, event, []string{"A1"}, b, 11*time.Minute)
	assert.ErrorIs(t, err, ErrPolicyViolation)

	_, err = s.engine.Hold(ctx, event, nil, b, time.Minute)
	assert.ErrorIs(t, err, ErrPolicyViolation)

	_, err = s.engine.Hold(ctx, event, []string{"A1"}, "", time.Minute)
	assert.ErrorIs(t, err, ErrPolicyViolation)

	res, err := s.engine.Hold(ctx, event, []string{"A1", "A1", "A2"}, b, 0)
	require.NoError(t, err)
	require.Len(t, res.Holds, 2, "duplicates collapse")
	assert.True(t, res.Holds[0].ExpiresAt.Equal(epoch.Add(2*time.Minute)), "zero ttl uses the default")

	_, err = s.engine.Hold(ctx, event, []string{"A3", "A4"}, b, time.Minute)
	assert.ErrorIs(t, err, ErrPolicyViolation)
	assert.Equal(t, model.SeatAvailable, s.status(t, "A3").Status)

	// refreshing held seats does not count twice
	_, err = s.engine.Hold(ctx, event, []string{"A1", "A2", "A3"}, b, time.Minute)
	require.NoError(t, err)

	// lapsed holds free their slots
	s.clock.Advance(time.Hour)
	_, err = s.engine.Hold(ctx, event, []string{"A4", "A5", "A6"}, b, time.Minute)
	require.NoError(t, err)
}

func TestHoldUnknownSeat(t *testing.T) {
	s := newSuite(t, Config{})
	ctx := context.Background()
	b := buyer()

	_, err := s.engine.Hold(ctx, "no-such-event", []string{"A1"}, b, time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.engine.Hold(ctx, event, []string{"A1", "Z99"}, b, time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, model.SeatAvailable, s.status(t, "A1").Status, "validated before reserving")
}

func TestCartIndependentExpiries(t *testing.T) {
	s := newSuite(t, Config{})
	ctx := context.Background()
	b := buyer()

	_, err := s.engine.Hold(ctx, event, []string{"A5"}, b, time.Minute)
	require.NoError(t, err)
	s.clock.Advance(10 * time.Second)
	res, err := s.engine.Hold(ctx, event, []string{"A2"}, b, 5*time.Minute)
	require.NoError(t, err)

	cart := res.Cart
	require.Len(t, cart.Items, 2)
	assert.Equal(t, seat("A5"), cart.Items[0].Seat, "hold order")
	assert.Equal(t, seat("A2"), cart.Items[1].Seat)
	require.NotNil(t, cart.ExpiresAt)
	assert.True(t, cart.ExpiresAt.Equal(epoch.Add(time.Minute)), "earliest member expiry")
	assert.True(t, cart.Items[0].ExpiresAt.Equal(epoch.Add(time.Minute)), "adding a seat leaves others alone")
	assert.Equal(t, uint32(3000), cart.TotalCents)

	s.clock.Advance(55 * time.Second)
	cart, err = s.engine.Cart(ctx, b)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, seat("A2"), cart.Items[0].Seat)
	assert.True(t, cart.ExpiresAt.Equal(epoch.Add(10*time.Second+5*time.Minute)))
}

func TestCancelAndClear(t *testing.T) {
	s := newSuite(t, Config{})
	ctx := context.Background()
	b := buyer()

	_, err := s.engine.Hold(ctx, event, []string{"A1", "A2", "A3"}, b, time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.engine.Cancel(ctx, b, seat("A2")))
	assert.ErrorIs(t, s.engine.Cancel(ctx, b, seat("A2")), ErrConflict)
	assert.ErrorIs(t, s.engine.Cancel(ctx, buyer(), seat("A1")), ErrConflict)
	assert.ErrorIs(t, s.engine.Cancel(ctx, b, seat("Z1")), ErrNotFound)

	n, err := s.engine.ClearCart(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, id := range []string{"A1", "A2", "A3"} {
		assert.Equal(t, model.SeatAvailable, s.status(t, id).Status)
	}

	n, err = s.engine.ClearCart(ctx, b)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReadsHideLapsedHolds(t *testing.T) {
	s := newSuite(t, Config{})
	ctx := context.Background()
	b := buyer()

	_, err := s.engine.Hold(ctx, event, []string{"A1"}, b, time.Minute)
	require.NoError(t, err)

	got, err := s.engine.Seat(ctx, seat("A1"))
	require.NoError(t, err)
	assert.Equal(t, model.SeatReserved, got.Status)

	s.clock.Advance(time.Minute)
	got, err = s.engine.Seat(ctx, seat("A1"))
	require.NoError(t, err)
	assert.Equal(t, model.SeatAvailable, got.Status)
	assert.Nil(t, got.ReservedUntil)

	// stored state is untouched until a transition reclaims it
	assert.Equal(t, model.SeatReserved, s.status(t, "A1").Status)

	seats, err := s.engine.EventSeats(ctx, event)
	require.NoError(t, err)
	require.Len(t, seats, 10)
	assert.Equal(t, model.SeatAvailable, seats[0].Status)

	_, err = s.engine.EventSeats(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.engine.Seat(ctx, seat("nope"))
	assert.ErrorIs(t, err, ErrNotFound)
}

// faultyLedger injects failures into selected ledger calls.
type faultyLedger struct {
	ledger.Ledger
	reserveErr map[string]error
	confirmErr map[string]error
}

func (f *faultyLedger) TryReserve(ctx context.Context, ref model.SeatRef, buyerID string, ttl time.Duration) (ledger.Reservation, error) {
	if err := f.reserveErr[ref.SeatID]; err != nil {
		return ledger.Reservation{}, err
	}
	return f.Ledger.TryReserve(ctx, ref, buyerID, ttl)
}

func (f *faultyLedger) ConfirmSale(ctx context.Context, ref model.SeatRef, buyerID, ticketID string) (string, error) {
	if err := f.confirmErr[ref.SeatID]; err != nil {
		return "", err
	}
	return f.Ledger.ConfirmSale(ctx, ref, buyerID, ticketID)
}

func TestHoldRollsBackWhenLedgerFails(t *testing.T) {
	storage := fmt.Errorf("write failed: %w", ledger.ErrUnavailable)
	s := newSuiteWith(t, Config{}, func(l ledger.Ledger) ledger.Ledger {
		return &faultyLedger{Ledger: l, reserveErr: map[string]error{"A3": storage}}
	})
	ctx := context.Background()
	b := buyer()

	_, err := s.engine.Hold(ctx, event, []string{"A1", "A2", "A3"}, b, time.Minute)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, ledger.ErrUnavailable)

	for _, id := range []string{"A1", "A2", "A3"} {
		assert.Equal(t, model.SeatAvailable, s.status(t, id).Status, id)
	}
}

func TestCheckoutCompensatesPartialSale(t *testing.T) {
	s := newSuiteWith(t, Config{}, func(l ledger.Ledger) ledger.Ledger {
		return &faultyLedger{Ledger: l, confirmErr: map[string]error{"A2": ledger.ErrConflict}}
	})
	ctx := context.Background()
	b := buyer()

	_, err := s.engine.Hold(ctx, event, []string{"A1", "A2"}, b, time.Minute)
	require.NoError(t, err)

	_, err = s.engine.Checkout(ctx, b)
	require.ErrorIs(t, err, ErrExpiredCart)

	a1 := s.status(t, "A1")
	assert.Equal(t, model.SeatReserved, a1.Status, "sale voided back to the hold")
	assert.Equal(t, b, a1.Holder)
	assert.Empty(t, a1.TicketID)
	require.NotNil(t, a1.ReservedUntil)
	assert.True(t, a1.ReservedUntil.Equal(epoch.Add(time.Minute)))
	assert.Empty(t, s.sales.got)

	cart, err := s.engine.Cart(ctx, b)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
}

// gatedLedger, once armed, holds every HeldBy caller until all of them
// have read the buyer index, so concurrent checkouts start from one cart.
type gatedLedger struct {
	ledger.Ledger
	armed atomic.Bool
	gate  sync.WaitGroup
}

func (g *gatedLedger) HeldBy(ctx context.Context, buyerID string) ([]model.Seat, error) {
	seats, err := g.Ledger.HeldBy(ctx, buyerID)
	if g.armed.Load() {
		g.gate.Done()
		g.gate.Wait()
	}
	return seats, err
}

func TestConcurrentCheckoutsSellEachSeatOnce(t *testing.T) {
	gated := &gatedLedger{}
	s := newSuiteWith(t, Config{}, func(l ledger.Ledger) ledger.Ledger {
		gated.Ledger = l
		return gated
	})
	ctx := context.Background()
	b := buyer()

	_, err := s.engine.Hold(ctx, event, []string{"A1", "A2"}, b, time.Minute)
	require.NoError(t, err)

	const callers = 2
	gated.gate.Add(callers)
	gated.armed.Store(true)
	results := make([]CheckoutResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.engine.Checkout(ctx, b)
		}(i)
	}
	wg.Wait()

	tickets := map[string]bool{}
	var total uint32
	for i := range results {
		if errs[i] != nil {
			assert.ErrorIs(t, errs[i], ErrEmpty)
			continue
		}
		for _, tk := range results[i].Tickets {
			assert.False(t, tickets[tk.ID], "ticket %s reported twice", tk.ID)
			tickets[tk.ID] = true
		}
		total += results[i].TotalCents
	}
	assert.Len(t, tickets, 2)
	assert.Equal(t, uint32(3000), total)

	s.sales.mu.Lock()
	defer s.sales.mu.Unlock()
	published := 0
	for _, ev := range s.sales.got {
		published += len(ev.Tickets)
	}
	assert.Equal(t, 2, published, "every sold seat is published exactly once")
}

func TestConcurrentHoldsNeverOrphanSeats(t *testing.T) {
	s := newSuite(t, Config{})
	ctx := context.Background()

	const buyers = 24
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(b string) {
			defer wg.Done()
			_, err := s.engine.Hold(ctx, event, []string{"A4", "A5"}, b, time.Minute)
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrPartialConflict)
		}(buyer())
	}
	wg.Wait()

	a4, a5 := s.status(t, "A4"), s.status(t, "A5")
	assert.LessOrEqual(t, wins.Load(), int32(1))
	if wins.Load() == 1 {
		assert.Equal(t, model.SeatReserved, a4.Status)
		assert.Equal(t, a4.Holder, a5.Holder)
	} else {
		assert.Equal(t, model.SeatAvailable, a4.Status)
		assert.Equal(t, model.SeatAvailable, a5.Status)
	}
}

type soldTickets []model.Ticket

func (s soldTickets) SoldTickets(context.Context) ([]model.Ticket, error) { return s, nil }

func TestBootstrapMarksSoldSeats(t *testing.T) {
	clk := clock.Fake(epoch)
	mem := ledger.NewMemory(clk, nil)
	e := New(Config{}, mem, testCatalog(), clk, discard())

	n, err := e.Bootstrap(context.Background(), soldTickets{{ID: "t-9", Seat: seat("A9"), BuyerID: "old"}})
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	a9, err := mem.GetSeat(context.Background(), seat("A9"))
	require.NoError(t, err)
	assert.Equal(t, model.SeatSold, a9.Status)
	assert.Equal(t, "t-9", a9.TicketID)

	_, err = e.Hold(context.Background(), event, []string{"A9"}, buyer(), time.Minute)
	assert.ErrorIs(t, err, ErrPartialConflict)
}
