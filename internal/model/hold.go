package model

import "time"

// Hold is the derived view of one outstanding reservation: the seat, who
// holds it and until when.  A seat has at most one active hold.
type Hold struct {
    Seat      SeatRef   `json:"seat"`
    BuyerID   string    `json:"buyer_id"`
    ExpiresAt time.Time `json:"expires_at"`
}
