package model

import "time"

// CartItem is one active hold in a buyer's cart.
type CartItem struct {
    Seat       SeatRef   `json:"seat"`
    Row        string    `json:"row"`
    Number     uint32    `json:"number"`
    PriceCents uint32    `json:"price_cents"`
    ExpiresAt  time.Time `json:"expires_at"`
}

// Cart groups a buyer's active holds into one checkout unit.  ExpiresAt is
// the earliest member expiry and is nil when the cart is empty.  A cart is
// a projection over the ledger and never a source of truth.
type Cart struct {
    BuyerID    string     `json:"buyer_id"`
    Items      []CartItem `json:"items"`
    TotalCents uint32     `json:"total_cents"`
    ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Empty reports whether the cart has no items.
func (c Cart) Empty() bool { return len(c.Items) == 0 }
