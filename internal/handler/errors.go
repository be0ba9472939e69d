package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-reservation-engine/internal/engine"
	"github.com/iliyamo/seat-reservation-engine/internal/lib/logger/sl"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// engineError writes the response for an engine error.  The message of
// the sentinel is shown to clients; wrapped causes are logged only when the
// failure is on our side.
func engineError(c echo.Context, log *slog.Logger, err error) error {
	var partial *engine.PartialConflictError
	if errors.As(err, &partial) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":  engine.ErrPartialConflict.Error(),
			"failed": seatIDs(partial.Failed),
		})
	}
	var expired *engine.ExpiredCartError
	if errors.As(err, &expired) {
		return c.JSON(http.StatusGone, echo.Map{
			"error":   engine.ErrExpiredCart.Error(),
			"expired": seatIDs(expired.Seats),
		})
	}

	for _, m := range []struct {
		target error
		status int
	}{
		{engine.ErrNotFound, http.StatusNotFound},
		{engine.ErrConflict, http.StatusConflict},
		{engine.ErrExpired, http.StatusGone},
		{engine.ErrExpiredCart, http.StatusGone},
		{engine.ErrEmpty, http.StatusBadRequest},
		{engine.ErrPolicyViolation, http.StatusUnprocessableEntity},
	} {
		if errors.Is(err, m.target) {
			msg := m.target.Error()
			if m.target == engine.ErrPolicyViolation {
				msg = err.Error()
			}
			return c.JSON(m.status, echo.Map{"error": msg})
		}
	}

	if errors.Is(err, engine.ErrUnavailable) {
		log.Warn("engine unavailable", slog.String("path", c.Path()), sl.Err(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": engine.ErrUnavailable.Error()})
	}
	log.Error("unexpected engine error", slog.String("path", c.Path()), sl.Err(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func seatIDs(refs []model.SeatRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.SeatID
	}
	return out
}
