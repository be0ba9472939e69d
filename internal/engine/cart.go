package engine

import (
	"context"
	"time"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// Cart projects the buyer's active holds into a cart.  Member holds keep
// independent expiries: adding a seat never moves the others, and the
// cart expires when its earliest member does.  Lapsed holds are dropped
// silently; the ledger reclaims them on its own.
func (e *Engine) Cart(ctx context.Context, buyerID string) (model.Cart, error) {
	const op = "engine.Cart"

	ctx, cancel := e.bounded(ctx)
	defer cancel()

	held, err := e.ledger.HeldBy(ctx, buyerID)
	if err != nil {
		return model.Cart{}, mapErr(op, err)
	}
	return project(buyerID, held, e.clock.Now()), nil
}

func project(buyerID string, held []model.Seat, now time.Time) model.Cart {
	cart := model.Cart{BuyerID: buyerID, Items: make([]model.CartItem, 0, len(held))}
	for _, s := range held {
		if !s.HeldBy(buyerID, now) {
			continue
		}
		until := *s.ReservedUntil
		cart.Items = append(cart.Items, model.CartItem{
			Seat:       s.Ref,
			Row:        s.Row,
			Number:     s.Number,
			PriceCents: s.PriceCents,
			ExpiresAt:  until,
		})
		cart.TotalCents += s.PriceCents
		if cart.ExpiresAt == nil || until.Before(*cart.ExpiresAt) {
			cart.ExpiresAt = &until
		}
	}
	return cart
}
