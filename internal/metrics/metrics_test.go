package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/engine"
	"github.com/iliyamo/seat-reservation-engine/internal/ledger"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// counter returns the value of name for the series whose labels include want.
func counter(t *testing.T, m *Metrics, name string, want map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	series:
		for _, metric := range f.GetMetric() {
			got := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if got[k] != v {
					continue series
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestObserveCountsTransitions(t *testing.T) {
	m := New()
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	l := ledger.NewMemory(clk, m)
	ctx := context.Background()
	ref := model.SeatRef{EventID: "ev", SeatID: "A1"}
	require.NoError(t, l.Seed(ctx, []model.Seat{{Ref: ref}}))

	_, err := l.TryReserve(ctx, ref, "alice", time.Minute)
	require.NoError(t, err)
	_, err = l.TryReserve(ctx, ref, "alice", time.Minute)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, ref, "alice"))

	assert.Equal(t, 1.0, counter(t, m, "seat_transitions_total", map[string]string{"cause": "reserve", "from": "available", "to": "reserved"}))
	assert.Equal(t, 1.0, counter(t, m, "seat_transitions_total", map[string]string{"cause": "refresh"}))
	assert.Equal(t, 1.0, counter(t, m, "seat_transitions_total", map[string]string{"cause": "release", "to": "available"}))
}

func TestTicketsSold(t *testing.T) {
	m := New()
	require.NoError(t, m.TicketsSold(context.Background(), engine.TicketsSold{
		BuyerID:    "bob",
		Tickets:    []model.Ticket{{ID: "t1"}, {ID: "t2"}},
		TotalCents: 4200,
	}))

	assert.Equal(t, 1.0, counter(t, m, "checkouts_completed_total", nil))
	assert.Equal(t, 2.0, counter(t, m, "tickets_sold_total", nil))
	assert.Equal(t, 4200.0, counter(t, m, "tickets_revenue_cents_total", nil))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Observe(ledger.Transition{Cause: ledger.CauseExpire, From: model.SeatReserved, To: model.SeatAvailable})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `seat_transitions_total{cause="expire",from="reserved",to="available"} 1`)
}
