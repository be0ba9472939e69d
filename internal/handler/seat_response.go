package handler

import (
	"time"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// seatResponse is the public view of a seat.  The holder is not exposed.
type seatResponse struct {
	EventID       string           `json:"event_id"`
	SeatID        string           `json:"seat_id"`
	Row           string           `json:"row"`
	Number        uint32           `json:"number"`
	Status        model.SeatStatus `json:"status"`
	ReservedUntil string           `json:"reserved_until,omitempty"`
	PriceCents    uint32           `json:"price_cents"`
}

func toSeatResponse(s model.Seat) seatResponse {
	out := seatResponse{
		EventID:    s.Ref.EventID,
		SeatID:     s.Ref.SeatID,
		Row:        s.Row,
		Number:     s.Number,
		Status:     s.Status,
		PriceCents: s.PriceCents,
	}
	if s.ReservedUntil != nil {
		out.ReservedUntil = s.ReservedUntil.UTC().Format(time.RFC3339)
	}
	return out
}
