package model

import "time"

// SeatStatus is the state of a seat in the ledger.  Seats cycle
// available ⇄ reserved → sold; sold is terminal.
type SeatStatus string

const (
    SeatAvailable SeatStatus = "available"
    SeatReserved  SeatStatus = "reserved"
    SeatSold      SeatStatus = "sold"
)

// SeatRef addresses one seat of one event.  Seat IDs are only unique
// within their event.
type SeatRef struct {
    EventID string `json:"event_id"`
    SeatID  string `json:"seat_id"`
}

// String renders the ref as "event/seat", used in logs and as a map key
// by the Redis ledger.
func (r SeatRef) String() string { return r.EventID + "/" + r.SeatID }

// Seat is the authoritative state of a seat.
//
// Fields:
//  Ref           – event and seat identifiers.
//  Row           – row label (A, B, ... AA).
//  Number        – seat number within the row.
//  Status        – available, reserved or sold.
//  Holder        – buyer ID; set only when reserved or sold.
//  ReservedUntil – hold expiry; set only when reserved.
//  PriceCents    – price in cents, taken from the catalog.
//  TicketID      – ticket issued when the seat was sold.
type Seat struct {
    Ref           SeatRef
    Row           string
    Number        uint32
    Status        SeatStatus
    Holder        string
    ReservedUntil *time.Time
    PriceCents    uint32
    TicketID      string
}

// HeldBy reports whether buyerID holds an unexpired reservation on the
// seat at now.
func (s Seat) HeldBy(buyerID string, now time.Time) bool {
    return s.Status == SeatReserved && s.Holder == buyerID && !s.Lapsed(now)
}

// Lapsed reports whether the seat is reserved with an expiry that is not
// strictly after now.
func (s Seat) Lapsed(now time.Time) bool {
    return s.Status == SeatReserved && (s.ReservedUntil == nil || !s.ReservedUntil.After(now))
}

// Effective returns the seat as a reader should see it at now: a lapsed
// hold is reported as available.  The stored state is not modified.
func (s Seat) Effective(now time.Time) Seat {
    if s.Lapsed(now) {
        s.Status = SeatAvailable
        s.Holder = ""
        s.ReservedUntil = nil
    }
    return s
}
