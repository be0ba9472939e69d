package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-reservation-engine/internal/handler"
)

// RegisterPublic registers the unauthenticated read routes.  cache wraps
// event reference data only; seat state changes too often to cache.
func RegisterPublic(e *echo.Echo, h *handler.EventHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/events")
	g.GET("/:id", h.GetEvent, cache)
	g.GET("/:id/seats", h.ListSeats)
	g.GET("/:id/seats/:seat", h.GetSeat)
}
