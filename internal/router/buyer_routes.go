package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-reservation-engine/internal/handler"
	"github.com/iliyamo/seat-reservation-engine/internal/middleware"
)

// RegisterBuyer registers the hold, cart and checkout routes.  They need a
// valid JWT with the BUYER role, and limit runs after authentication so it
// can key buckets by buyer.
func RegisterBuyer(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleBuyer),
		limit,
	)
	g.POST("/events/:id/holds", h.Hold)
	g.DELETE("/events/:id/holds/:seat", h.Cancel)

	g.GET("/cart", h.Cart)
	g.DELETE("/cart", h.ClearCart)
	g.POST("/cart/checkout", h.Checkout)
}
