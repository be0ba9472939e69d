package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

const sweepBatch = 500

// Redis is a Ledger shared by every engine instance pointed at the same
// Redis server.  Each transition is one Lua script, so it is atomic with
// respect to every other transition; a script that fails leaves the seat
// untouched.  Buyer index keys are derived inside the scripts, so the
// ledger requires a standalone (non-cluster) Redis deployment.
type Redis struct {
	rdb      redis.UniversalClient
	clock    clock.Clock
	observer Observer
	prefix   string
}

// NewRedis returns a Redis-backed ledger.  prefix namespaces every key
// (default "ledger"); observer may be nil.
func NewRedis(rdb redis.UniversalClient, clk clock.Clock, observer Observer, prefix string) *Redis {
	if observer == nil {
		observer = nopObserver{}
	}
	if prefix == "" {
		prefix = "ledger"
	}
	return &Redis{rdb: rdb, clock: clk, observer: observer, prefix: prefix}
}

func (r *Redis) seatKey(ref model.SeatRef) string {
	return r.prefix + ":seat:" + ref.EventID + ":" + ref.SeatID
}
func (r *Redis) eventKey(eventID string) string { return r.prefix + ":event:" + eventID + ":seats" }
func (r *Redis) buyerKey(buyerID string) string { return r.prefix + ":buyer:" + buyerID }
func (r *Redis) expiryKey() string              { return r.prefix + ":expiries" }

func member(ref model.SeatRef) string { return ref.EventID + "|" + ref.SeatID }

func parseMember(m string) (model.SeatRef, bool) {
	ev, seat, ok := strings.Cut(m, "|")
	return model.SeatRef{EventID: ev, SeatID: seat}, ok
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Seed registers seats that do not exist yet.
func (r *Redis) Seed(ctx context.Context, seats []model.Seat) error {
	const op = "ledger.Redis.Seed"

	for _, s := range seats {
		if s.Ref.EventID == "" || s.Ref.SeatID == "" || strings.Contains(s.Ref.EventID, "|") {
			return fmt.Errorf("%s: bad seat ref %q: %w", op, s.Ref, ErrInvalid)
		}
		status, holder, ticket := model.SeatAvailable, "", ""
		switch s.Status {
		case "", model.SeatAvailable:
		case model.SeatSold:
			if s.Holder == "" {
				return fmt.Errorf("%s: sold seat %s without holder: %w", op, s.Ref, ErrInvalid)
			}
			status, holder, ticket = model.SeatSold, s.Holder, s.TicketID
		default:
			return fmt.Errorf("%s: cannot seed seat %s as %s: %w", op, s.Ref, s.Status, ErrInvalid)
		}
		err := seedScript.Run(ctx, r.rdb,
			[]string{r.seatKey(s.Ref), r.eventKey(s.Ref.EventID)},
			s.Ref.SeatID, string(status), holder, s.PriceCents, s.Row, s.Number, ticket,
		).Err()
		if err != nil {
			return unavailable(op, err)
		}
	}
	return nil
}

// GetSeat reads one seat hash.
func (r *Redis) GetSeat(ctx context.Context, ref model.SeatRef) (model.Seat, error) {
	const op = "ledger.Redis.GetSeat"

	fields, err := r.rdb.HGetAll(ctx, r.seatKey(ref)).Result()
	if err != nil {
		return model.Seat{}, unavailable(op, err)
	}
	if len(fields) == 0 {
		return model.Seat{}, ErrNotFound
	}
	return seatFromHash(ref, fields), nil
}

// Seats reads every seat of an event in seed order with one pipeline.
func (r *Redis) Seats(ctx context.Context, eventID string) ([]model.Seat, error) {
	const op = "ledger.Redis.Seats"

	ids, err := r.rdb.LRange(ctx, r.eventKey(eventID), 0, -1).Result()
	if err != nil {
		return nil, unavailable(op, err)
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	refs := make([]model.SeatRef, len(ids))
	for i, id := range ids {
		refs[i] = model.SeatRef{EventID: eventID, SeatID: id}
	}
	seats, err := r.readSeats(ctx, refs)
	if err != nil {
		return nil, unavailable(op, err)
	}
	return seats, nil
}

func (r *Redis) readSeats(ctx context.Context, refs []model.SeatRef) ([]model.Seat, error) {
	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(refs))
	for i, ref := range refs {
		cmds[i] = pipe.HGetAll(ctx, r.seatKey(ref))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Seat, 0, len(refs))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		out = append(out, seatFromHash(refs[i], fields))
	}
	return out, nil
}

// TryReserve places or refreshes a hold.
func (r *Redis) TryReserve(ctx context.Context, ref model.SeatRef, buyerID string, ttl time.Duration) (Reservation, error) {
	const op = "ledger.Redis.TryReserve"

	if buyerID == "" || ttl <= 0 {
		return Reservation{}, ErrInvalid
	}
	now := r.clock.Now()
	untilMs := ceilMilli(now.Add(ttl))
	res, err := reserveScript.Run(ctx, r.rdb,
		[]string{r.seatKey(ref), r.buyerKey(buyerID), r.expiryKey()},
		buyerID, now.UnixMilli(), untilMs, member(ref), r.prefix,
	).StringSlice()
	if err != nil {
		return Reservation{}, unavailable(op, err)
	}
	switch res[0] {
	case "notfound":
		return Reservation{}, ErrNotFound
	case "conflict":
		return Reservation{}, ErrConflict
	}

	until := time.UnixMilli(untilMs).UTC()
	tr := Transition{Seat: ref, From: model.SeatReserved, To: model.SeatReserved, BuyerID: buyerID, At: now, Cause: Cause(res[1])}
	if tr.Cause == CauseReserve {
		tr.From = model.SeatAvailable
	}
	if len(res) > 2 {
		tr.Previous = res[2]
	}
	r.observer.Observe(tr)
	return Reservation{Seat: ref, ExpiresAt: until, Refreshed: tr.Cause == CauseRefresh}, nil
}

// ConfirmSale turns the buyer's unexpired hold into a sale.
func (r *Redis) ConfirmSale(ctx context.Context, ref model.SeatRef, buyerID, ticketID string) (string, error) {
	const op = "ledger.Redis.ConfirmSale"

	if buyerID == "" || ticketID == "" {
		return "", ErrInvalid
	}
	now := r.clock.Now()
	res, err := confirmScript.Run(ctx, r.rdb,
		[]string{r.seatKey(ref), r.buyerKey(buyerID), r.expiryKey()},
		buyerID, now.UnixMilli(), ticketID, member(ref),
	).StringSlice()
	if err != nil {
		return "", unavailable(op, err)
	}
	switch res[0] {
	case "notfound":
		return "", ErrNotFound
	case "conflict":
		return "", ErrConflict
	case "expired":
		r.observer.Observe(Transition{Seat: ref, From: model.SeatReserved, To: model.SeatAvailable, Previous: buyerID, At: now, Cause: CauseExpire})
		return "", ErrExpired
	}
	if res[1] == "confirm" {
		r.observer.Observe(Transition{Seat: ref, From: model.SeatReserved, To: model.SeatSold, BuyerID: buyerID, At: now, Cause: CauseConfirm})
	}
	return res[2], nil
}

// Release cancels the buyer's hold.
func (r *Redis) Release(ctx context.Context, ref model.SeatRef, buyerID string) error {
	const op = "ledger.Redis.Release"

	if buyerID == "" {
		return ErrConflict
	}
	res, err := releaseScript.Run(ctx, r.rdb,
		[]string{r.seatKey(ref), r.buyerKey(buyerID), r.expiryKey()},
		buyerID, member(ref),
	).StringSlice()
	if err != nil {
		return unavailable(op, err)
	}
	switch res[0] {
	case "notfound":
		return ErrNotFound
	case "conflict":
		return ErrConflict
	}
	r.observer.Observe(Transition{Seat: ref, From: model.SeatReserved, To: model.SeatAvailable, BuyerID: buyerID, At: r.clock.Now(), Cause: CauseRelease})
	return nil
}

// VoidSale reverts a sale issued by an incomplete checkout.
func (r *Redis) VoidSale(ctx context.Context, ref model.SeatRef, buyerID, ticketID string, restoreUntil time.Time) error {
	const op = "ledger.Redis.VoidSale"

	if ticketID == "" {
		return ErrConflict
	}
	now := r.clock.Now()
	res, err := voidScript.Run(ctx, r.rdb,
		[]string{r.seatKey(ref), r.buyerKey(buyerID), r.expiryKey()},
		buyerID, ticketID, now.UnixMilli(), restoreUntil.UnixMilli(), member(ref),
	).StringSlice()
	if err != nil {
		return unavailable(op, err)
	}
	switch res[0] {
	case "notfound":
		return ErrNotFound
	case "conflict":
		return ErrConflict
	}
	r.observer.Observe(Transition{Seat: ref, From: model.SeatSold, To: model.SeatStatus(res[1]), BuyerID: buyerID, At: now, Cause: CauseVoid})
	return nil
}

// SweepExpired reclaims lapsed holds in batches of sweepBatch.  Each batch
// is one script call; other clients interleave between batches.
func (r *Redis) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	const op = "ledger.Redis.SweepExpired"

	reclaimed := 0
	for {
		res, err := sweepScript.Run(ctx, r.rdb,
			[]string{r.expiryKey()},
			now.UnixMilli(), sweepBatch, r.prefix,
		).StringSlice()
		if err != nil {
			return reclaimed, unavailable(op, err)
		}
		scanned, _ := strconv.Atoi(res[0])
		for i := 1; i+1 < len(res); i += 2 {
			ref, ok := parseMember(res[i])
			if !ok {
				continue
			}
			reclaimed++
			r.observer.Observe(Transition{Seat: ref, From: model.SeatReserved, To: model.SeatAvailable, Previous: res[i+1], At: now, Cause: CauseExpire})
		}
		if scanned < sweepBatch {
			return reclaimed, nil
		}
	}
}

// HeldBy lists the buyer's reserved seats in hold order.
func (r *Redis) HeldBy(ctx context.Context, buyerID string) ([]model.Seat, error) {
	const op = "ledger.Redis.HeldBy"

	members, err := r.rdb.ZRange(ctx, r.buyerKey(buyerID), 0, -1).Result()
	if err != nil {
		return nil, unavailable(op, err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	refs := make([]model.SeatRef, 0, len(members))
	for _, m := range members {
		if ref, ok := parseMember(m); ok {
			refs = append(refs, ref)
		}
	}
	seats, err := r.readSeats(ctx, refs)
	if err != nil {
		return nil, unavailable(op, err)
	}
	out := seats[:0]
	for _, s := range seats {
		if s.Status == model.SeatReserved && s.Holder == buyerID {
			out = append(out, s)
		}
	}
	return out, nil
}

// ceilMilli rounds t up to a whole millisecond, the precision expiries are
// stored and compared at.  Rounding up means a hold never lapses before the
// ttl it was granted.
func ceilMilli(t time.Time) int64 {
	ms := t.UnixMilli()
	if t.Sub(time.UnixMilli(ms)) > 0 {
		ms++
	}
	return ms
}

func seatFromHash(ref model.SeatRef, f map[string]string) model.Seat {
	s := model.Seat{
		Ref:      ref,
		Row:      f["row"],
		Status:   model.SeatStatus(f["status"]),
		Holder:   f["holder"],
		TicketID: f["ticket"],
	}
	if n, err := strconv.ParseUint(f["number"], 10, 32); err == nil {
		s.Number = uint32(n)
	}
	if p, err := strconv.ParseUint(f["price"], 10, 32); err == nil {
		s.PriceCents = uint32(p)
	}
	if ms, err := strconv.ParseInt(f["until"], 10, 64); err == nil && s.Status == model.SeatReserved {
		until := time.UnixMilli(ms).UTC()
		s.ReservedUntil = &until
	}
	return s
}
