package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-reservation-engine/internal/engine"
	"github.com/iliyamo/seat-reservation-engine/internal/middleware"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// ReservationHandler serves the buyer routes.  JWT authentication and the
// BUYER role check run in middleware before any of these methods.
type ReservationHandler struct {
	Engine *engine.Engine
	log    *slog.Logger
}

// NewReservationHandler panics on a nil engine.
func NewReservationHandler(eng *engine.Engine, log *slog.Logger) *ReservationHandler {
	if eng == nil {
		panic("nil engine passed to NewReservationHandler")
	}
	return &ReservationHandler{Engine: eng, log: log}
}

type holdRequest struct {
	SeatIDs    []string `json:"seat_ids"`
	TTLSeconds int      `json:"ttl_seconds"`
}

// Hold handles POST /v1/events/:id/holds.  Either every requested seat is
// held and 201 returned with the holds and the updated cart, or none is.
func (h *ReservationHandler) Hold(c echo.Context) error {
	buyerID, ok := buyer(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body holdRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(body.SeatIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_ids is required"})
	}
	if body.TTLSeconds < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ttl_seconds must not be negative"})
	}

	// bound before converting; large values overflow time.Duration
	if maxTTL := h.Engine.Config().MaxHoldTTL; int64(body.TTLSeconds) > int64(maxTTL/time.Second) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"error": fmt.Sprintf("%s: ttl_seconds exceeds the maximum of %d", engine.ErrPolicyViolation, int64(maxTTL/time.Second)),
		})
	}
	ttl := time.Duration(body.TTLSeconds) * time.Second
	res, err := h.Engine.Hold(c.Request().Context(), c.Param("id"), body.SeatIDs, buyerID, ttl)
	if err != nil {
		return engineError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Cancel handles DELETE /v1/events/:id/holds/:seat.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	buyerID, ok := buyer(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ref := model.SeatRef{EventID: c.Param("id"), SeatID: c.Param("seat")}
	if err := h.Engine.Cancel(c.Request().Context(), buyerID, ref); err != nil {
		return engineError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Cart handles GET /v1/cart.
func (h *ReservationHandler) Cart(c echo.Context) error {
	buyerID, ok := buyer(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	cart, err := h.Engine.Cart(c.Request().Context(), buyerID)
	if err != nil {
		return engineError(c, h.log, err)
	}
	if cart.Items == nil {
		cart.Items = []model.CartItem{}
	}
	return c.JSON(http.StatusOK, cart)
}

// ClearCart handles DELETE /v1/cart.
func (h *ReservationHandler) ClearCart(c echo.Context) error {
	buyerID, ok := buyer(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	n, err := h.Engine.ClearCart(c.Request().Context(), buyerID)
	if err != nil {
		return engineError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": n})
}

// Checkout handles POST /v1/cart/checkout.  It sells every seat in the
// cart or none of them.
func (h *ReservationHandler) Checkout(c echo.Context) error {
	buyerID, ok := buyer(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	res, err := h.Engine.Checkout(c.Request().Context(), buyerID)
	if err != nil {
		return engineError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

func buyer(c echo.Context) (string, bool) {
	id := middleware.BuyerID(c)
	return id, id != ""
}
