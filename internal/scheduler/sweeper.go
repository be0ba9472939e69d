// Package scheduler runs the background expiry sweep.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/lib/logger/sl"
)

// DefaultInterval is used when the configured interval is not positive.
const DefaultInterval = 2 * time.Second

// Expirer is the part of the ledger the sweeper drives.
type Expirer interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// Sweeper periodically returns lapsed holds to the pool.  Holds are also
// checked at every transition, so a slow or failed sweep only delays when
// abandoned seats show up as available in stored state.
type Sweeper struct {
	ledger   Expirer
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
}

func NewSweeper(ledger Expirer, clk clock.Clock, interval, timeout time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = interval
	}
	return &Sweeper{
		ledger:   ledger,
		clock:    clk,
		interval: interval,
		timeout:  timeout,
		log:      log.With(slog.String("component", "sweeper")),
	}
}

// Run sweeps on every tick until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("sweeper started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep at the clock's current time.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	const op = "scheduler.Sweeper.RunOnce"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.ledger.SweepExpired(ctx, s.clock.Now())
	if err != nil {
		s.log.Error("sweep failed", slog.String("op", op), slog.Int("reclaimed", n), sl.Err(err))
		return n, err
	}
	if n > 0 {
		s.log.Debug("expired holds reclaimed", slog.Int("count", n))
	}
	return n, nil
}
