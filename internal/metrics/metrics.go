// Package metrics exposes reservation activity to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/seat-reservation-engine/internal/engine"
	"github.com/iliyamo/seat-reservation-engine/internal/ledger"
)

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on the default one.
type Metrics struct {
	reg         *prometheus.Registry
	transitions *prometheus.CounterVec
	ticketsSold prometheus.Counter
	revenue     prometheus.Counter
	checkouts   prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		reg: reg,
		transitions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "seat_transitions_total",
			Help: "Committed seat state transitions.",
		}, []string{"cause", "from", "to"}),
		ticketsSold: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tickets_sold_total",
			Help: "Tickets issued by completed checkouts.",
		}),
		revenue: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tickets_revenue_cents_total",
			Help: "Sum of ticket prices in cents.",
		}),
		checkouts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "checkouts_completed_total",
			Help: "Completed checkouts.",
		}),
	}
}

// Observe implements ledger.Observer.
func (m *Metrics) Observe(t ledger.Transition) {
	m.transitions.WithLabelValues(string(t.Cause), string(t.From), string(t.To)).Inc()
}

// TicketsSold implements engine.SaleSink.
func (m *Metrics) TicketsSold(_ context.Context, ev engine.TicketsSold) error {
	m.checkouts.Inc()
	m.ticketsSold.Add(float64(len(ev.Tickets)))
	m.revenue.Add(float64(ev.TotalCents))
	return nil
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
