package router

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-reservation-engine/internal/catalog"
	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/engine"
	"github.com/iliyamo/seat-reservation-engine/internal/handler"
	"github.com/iliyamo/seat-reservation-engine/internal/ledger"
	"github.com/iliyamo/seat-reservation-engine/internal/metrics"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

func TestRoutes(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.Real()
	m := metrics.New()
	cat := catalog.NewStatic()
	cat.Add(model.Event{ID: "e1", Name: "Show"}, catalog.GenerateSeats("e1", 2, 2, 100))
	eng := engine.New(engine.DefaultConfig(), ledger.NewMemory(clk, m), cat, clk, log, m)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	_, err := eng.Bootstrap(ctx, nil)
	require.NoError(t, err)

	cached := 0
	cache := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error { cached++; return next(c) }
	}
	limited := 0
	limit := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error { limited++; return next(c) }
	}

	e := echo.New()
	RegisterRoutes(e, m.Handler())
	RegisterPublic(e, handler.NewEventHandler(eng, log), cache)
	RegisterBuyer(e, handler.NewReservationHandler(eng, log), "secret", limit)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/healthz").Code)
	rec := get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))

	assert.Equal(t, http.StatusOK, get("/v1/events/e1").Code)
	assert.Equal(t, http.StatusOK, get("/v1/events/e1/seats").Code)
	assert.Equal(t, http.StatusOK, get("/v1/events/e1/seats/A1").Code)
	assert.Equal(t, 1, cached, "only event data goes through the cache")

	assert.Equal(t, http.StatusUnauthorized, get("/v1/cart").Code)
	assert.Zero(t, limited, "unauthenticated requests never reach the limiter")
}
