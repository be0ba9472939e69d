package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// Memory is an in-process Ledger.  Each seat record carries its own mutex;
// there is no event-wide or global lock on any transition path.  The
// layout lock (layoutMu) only guards the set of known seats, which changes
// when events are seeded, and is held for lookups only.
//
// Lock order is always seat record, then buyer index.  Nothing ever takes
// a seat lock while holding a buyer index lock.
type Memory struct {
	clock    clock.Clock
	observer Observer

	layoutMu sync.RWMutex
	seats    map[model.SeatRef]*seatRecord
	events   map[string][]*seatRecord // seats in seed order

	buyers sync.Map // buyer ID -> *buyerIndex
}

type seatRecord struct {
	mu   sync.Mutex
	seat model.Seat
}

// NewMemory returns an empty in-memory ledger.  observer may be nil.
func NewMemory(clk clock.Clock, observer Observer) *Memory {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Memory{
		clock:    clk,
		observer: observer,
		seats:    make(map[model.SeatRef]*seatRecord),
		events:   make(map[string][]*seatRecord),
	}
}

// Seed registers seats.  Existing seats are not overwritten.
func (m *Memory) Seed(ctx context.Context, seats []model.Seat) error {
	const op = "ledger.Memory.Seed"

	for _, s := range seats {
		if s.Ref.EventID == "" || s.Ref.SeatID == "" {
			return fmt.Errorf("%s: empty seat ref: %w", op, ErrInvalid)
		}
		switch s.Status {
		case "", model.SeatAvailable:
			s.Status = model.SeatAvailable
			s.Holder, s.ReservedUntil, s.TicketID = "", nil, ""
		case model.SeatSold:
			if s.Holder == "" {
				return fmt.Errorf("%s: sold seat %s without holder: %w", op, s.Ref, ErrInvalid)
			}
			s.ReservedUntil = nil
		default:
			return fmt.Errorf("%s: cannot seed seat %s as %s: %w", op, s.Ref, s.Status, ErrInvalid)
		}

		m.layoutMu.Lock()
		if _, ok := m.seats[s.Ref]; !ok {
			rec := &seatRecord{seat: s}
			m.seats[s.Ref] = rec
			m.events[s.Ref.EventID] = append(m.events[s.Ref.EventID], rec)
		}
		m.layoutMu.Unlock()
	}
	return ctx.Err()
}

func (m *Memory) record(ref model.SeatRef) (*seatRecord, bool) {
	m.layoutMu.RLock()
	defer m.layoutMu.RUnlock()
	rec, ok := m.seats[ref]
	return rec, ok
}

// GetSeat returns the stored state of one seat.
func (m *Memory) GetSeat(ctx context.Context, ref model.SeatRef) (model.Seat, error) {
	if err := ctx.Err(); err != nil {
		return model.Seat{}, err
	}
	rec, ok := m.record(ref)
	if !ok {
		return model.Seat{}, ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return cloneSeat(rec.seat), nil
}

// Seats returns every seat of an event in seed order.
func (m *Memory) Seats(ctx context.Context, eventID string) ([]model.Seat, error) {
	m.layoutMu.RLock()
	recs := append([]*seatRecord(nil), m.events[eventID]...)
	m.layoutMu.RUnlock()
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	out := make([]model.Seat, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, cloneSeat(rec.seat))
		rec.mu.Unlock()
	}
	return out, ctx.Err()
}

// TryReserve places or refreshes a hold.  See Ledger for the rules.
func (m *Memory) TryReserve(ctx context.Context, ref model.SeatRef, buyerID string, ttl time.Duration) (Reservation, error) {
	if buyerID == "" || ttl <= 0 {
		return Reservation{}, ErrInvalid
	}
	if err := ctx.Err(); err != nil {
		return Reservation{}, err
	}
	rec, ok := m.record(ref)
	if !ok {
		return Reservation{}, ErrNotFound
	}

	now := m.clock.Now()
	until := now.Add(ttl)
	tr := Transition{Seat: ref, To: model.SeatReserved, BuyerID: buyerID, At: now}

	rec.mu.Lock()
	s := &rec.seat
	switch {
	case s.Status == model.SeatAvailable:
		tr.From, tr.Cause = model.SeatAvailable, CauseReserve
	case s.Status == model.SeatReserved && s.Holder == buyerID:
		tr.From, tr.Cause = model.SeatReserved, CauseRefresh
	case s.Status == model.SeatReserved && s.Lapsed(now):
		tr.From, tr.Cause, tr.Previous = model.SeatReserved, CauseReclaim, s.Holder
		m.unindex(s.Holder, ref)
	default:
		rec.mu.Unlock()
		return Reservation{}, ErrConflict
	}
	s.Status = model.SeatReserved
	s.Holder = buyerID
	s.ReservedUntil = &until
	m.index(buyerID, ref)
	rec.mu.Unlock()

	m.observer.Observe(tr)
	return Reservation{Seat: ref, ExpiresAt: until, Refreshed: tr.Cause == CauseRefresh}, nil
}

// ConfirmSale turns the buyer's unexpired hold into a sale.  Confirming a
// seat already sold to the same buyer returns the existing ticket ID.
func (m *Memory) ConfirmSale(ctx context.Context, ref model.SeatRef, buyerID, ticketID string) (string, error) {
	if buyerID == "" || ticketID == "" {
		return "", ErrInvalid
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rec, ok := m.record(ref)
	if !ok {
		return "", ErrNotFound
	}

	now := m.clock.Now()
	rec.mu.Lock()
	s := &rec.seat
	if s.Status == model.SeatSold && s.Holder == buyerID {
		existing := s.TicketID
		rec.mu.Unlock()
		return existing, nil
	}
	if s.Status != model.SeatReserved || s.Holder != buyerID {
		rec.mu.Unlock()
		return "", ErrConflict
	}
	if s.Lapsed(now) {
		s.Status, s.Holder, s.ReservedUntil = model.SeatAvailable, "", nil
		m.unindex(buyerID, ref)
		rec.mu.Unlock()
		m.observer.Observe(Transition{Seat: ref, From: model.SeatReserved, To: model.SeatAvailable, Previous: buyerID, At: now, Cause: CauseExpire})
		return "", ErrExpired
	}
	s.Status = model.SeatSold
	s.ReservedUntil = nil
	s.TicketID = ticketID
	m.unindex(buyerID, ref)
	rec.mu.Unlock()

	m.observer.Observe(Transition{Seat: ref, From: model.SeatReserved, To: model.SeatSold, BuyerID: buyerID, At: now, Cause: CauseConfirm})
	return ticketID, nil
}

// Release cancels the buyer's hold.
func (m *Memory) Release(ctx context.Context, ref model.SeatRef, buyerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, ok := m.record(ref)
	if !ok {
		return ErrNotFound
	}
	now := m.clock.Now()
	rec.mu.Lock()
	s := &rec.seat
	if s.Status != model.SeatReserved || s.Holder != buyerID || buyerID == "" {
		rec.mu.Unlock()
		return ErrConflict
	}
	s.Status, s.Holder, s.ReservedUntil = model.SeatAvailable, "", nil
	m.unindex(buyerID, ref)
	rec.mu.Unlock()

	m.observer.Observe(Transition{Seat: ref, From: model.SeatReserved, To: model.SeatAvailable, BuyerID: buyerID, At: now, Cause: CauseRelease})
	return nil
}

// VoidSale reverts a sale issued by an incomplete checkout.
func (m *Memory) VoidSale(ctx context.Context, ref model.SeatRef, buyerID, ticketID string, restoreUntil time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, ok := m.record(ref)
	if !ok {
		return ErrNotFound
	}
	now := m.clock.Now()
	tr := Transition{Seat: ref, From: model.SeatSold, BuyerID: buyerID, At: now, Cause: CauseVoid}

	rec.mu.Lock()
	s := &rec.seat
	if s.Status != model.SeatSold || s.Holder != buyerID || s.TicketID != ticketID || ticketID == "" {
		rec.mu.Unlock()
		return ErrConflict
	}
	s.TicketID = ""
	if restoreUntil.After(now) {
		until := restoreUntil
		s.Status, s.ReservedUntil = model.SeatReserved, &until
		m.index(buyerID, ref)
		tr.To = model.SeatReserved
	} else {
		s.Status, s.Holder, s.ReservedUntil = model.SeatAvailable, "", nil
		tr.To = model.SeatAvailable
	}
	rec.mu.Unlock()

	m.observer.Observe(tr)
	return nil
}

// SweepExpired reclaims lapsed holds.  Each seat is locked on its own, so
// a sweep never blocks buyers working on other seats for longer than one
// seat check.
func (m *Memory) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	m.layoutMu.RLock()
	recs := make([]*seatRecord, 0, len(m.seats))
	for _, rec := range m.seats {
		recs = append(recs, rec)
	}
	m.layoutMu.RUnlock()

	reclaimed := 0
	for i, rec := range recs {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return reclaimed, err
			}
		}
		rec.mu.Lock()
		s := &rec.seat
		if !s.Lapsed(now) {
			rec.mu.Unlock()
			continue
		}
		holder := s.Holder
		s.Status, s.Holder, s.ReservedUntil = model.SeatAvailable, "", nil
		m.unindex(holder, s.Ref)
		ref := s.Ref
		rec.mu.Unlock()

		reclaimed++
		m.observer.Observe(Transition{Seat: ref, From: model.SeatReserved, To: model.SeatAvailable, Previous: holder, At: now, Cause: CauseExpire})
	}
	return reclaimed, nil
}

// HeldBy lists the buyer's reserved seats in hold order.  Index entries
// are re-checked against the seat record, so an entry that raced with a
// concurrent transition is skipped rather than reported.
func (m *Memory) HeldBy(ctx context.Context, buyerID string) ([]model.Seat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries := m.indexSnapshot(buyerID)
	out := make([]model.Seat, 0, len(entries))
	for _, e := range entries {
		rec, ok := m.record(e.ref)
		if !ok {
			continue
		}
		rec.mu.Lock()
		if rec.seat.Status == model.SeatReserved && rec.seat.Holder == buyerID {
			out = append(out, cloneSeat(rec.seat))
		}
		rec.mu.Unlock()
	}
	return out, nil
}

// buyerIndex tracks which seats a buyer currently holds.  It is an index,
// never the authority: readers always confirm against the seat record.
type buyerIndex struct {
	mu    sync.Mutex
	seq   uint64
	items map[model.SeatRef]uint64
	dead  bool
}

type indexEntry struct {
	ref model.SeatRef
	seq uint64
}

// index records ref for buyerID, keeping the original position when the
// seat is already indexed.  Called with the seat lock held.
func (m *Memory) index(buyerID string, ref model.SeatRef) {
	for {
		v, _ := m.buyers.LoadOrStore(buyerID, &buyerIndex{items: make(map[model.SeatRef]uint64)})
		idx := v.(*buyerIndex)
		idx.mu.Lock()
		if idx.dead {
			idx.mu.Unlock()
			continue
		}
		if _, ok := idx.items[ref]; !ok {
			idx.seq++
			idx.items[ref] = idx.seq
		}
		idx.mu.Unlock()
		return
	}
}

// unindex drops ref from buyerID's index and discards the index once it is
// empty.  Called with the seat lock held.
func (m *Memory) unindex(buyerID string, ref model.SeatRef) {
	v, ok := m.buyers.Load(buyerID)
	if !ok {
		return
	}
	idx := v.(*buyerIndex)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.items, ref)
	if len(idx.items) == 0 && !idx.dead {
		idx.dead = true
		m.buyers.CompareAndDelete(buyerID, idx)
	}
}

func (m *Memory) indexSnapshot(buyerID string) []indexEntry {
	v, ok := m.buyers.Load(buyerID)
	if !ok {
		return nil
	}
	idx := v.(*buyerIndex)
	idx.mu.Lock()
	out := make([]indexEntry, 0, len(idx.items))
	for ref, seq := range idx.items {
		out = append(out, indexEntry{ref: ref, seq: seq})
	}
	idx.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
