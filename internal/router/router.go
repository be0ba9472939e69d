package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-reservation-engine/internal/handler"
)

// RegisterRoutes registers the operational endpoints: the health check and,
// when metrics is non-nil, the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, metrics http.Handler) {
	e.GET("/healthz", handler.Health)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}
