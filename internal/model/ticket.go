package model

import "time"

// Ticket records a sold seat.  It is issued once per seat; repeated
// confirmations of the same sale return the same ticket ID.
type Ticket struct {
    ID         string    `json:"id"`
    Seat       SeatRef   `json:"seat"`
    BuyerID    string    `json:"buyer_id"`
    PriceCents uint32    `json:"price_cents"`
    SoldAt     time.Time `json:"sold_at"`
}
