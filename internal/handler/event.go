package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-reservation-engine/internal/engine"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// EventHandler serves the public read routes: event reference data and
// the live seat map.
type EventHandler struct {
	Engine *engine.Engine
	log    *slog.Logger
}

// NewEventHandler panics on a nil engine.
func NewEventHandler(eng *engine.Engine, log *slog.Logger) *EventHandler {
	if eng == nil {
		panic("nil engine passed to NewEventHandler")
	}
	return &EventHandler{Engine: eng, log: log}
}

// GetEvent handles GET /v1/events/:id.
func (h *EventHandler) GetEvent(c echo.Context) error {
	ev, err := h.Engine.Event(c.Request().Context(), c.Param("id"))
	if err != nil {
		return engineError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// ListSeats handles GET /v1/events/:id/seats.  Optional ?status= filters
// by available, reserved or sold.
func (h *EventHandler) ListSeats(c echo.Context) error {
	eventID := c.Param("id")
	filter := model.SeatStatus(c.QueryParam("status"))
	switch filter {
	case "", model.SeatAvailable, model.SeatReserved, model.SeatSold:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status filter"})
	}

	seats, err := h.Engine.EventSeats(c.Request().Context(), eventID)
	if err != nil {
		return engineError(c, h.log, err)
	}
	out := make([]seatResponse, 0, len(seats))
	for _, s := range seats {
		if filter != "" && s.Status != filter {
			continue
		}
		out = append(out, toSeatResponse(s))
	}
	return c.JSON(http.StatusOK, echo.Map{"event_id": eventID, "seats": out})
}

// GetSeat handles GET /v1/events/:id/seats/:seat.
func (h *EventHandler) GetSeat(c echo.Context) error {
	ref := model.SeatRef{EventID: c.Param("id"), SeatID: c.Param("seat")}
	s, err := h.Engine.Seat(c.Request().Context(), ref)
	if err != nil {
		return engineError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toSeatResponse(s))
}
