package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-reservation-engine/internal/clock"
	"github.com/iliyamo/seat-reservation-engine/internal/ledger"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func seeded(t *testing.T, clk clock.Clock) *ledger.Memory {
	t.Helper()
	l := ledger.NewMemory(clk, nil)
	require.NoError(t, l.Seed(context.Background(), []model.Seat{
		{Ref: model.SeatRef{EventID: "ev", SeatID: "A1"}, Status: model.SeatAvailable},
		{Ref: model.SeatRef{EventID: "ev", SeatID: "A2"}, Status: model.SeatAvailable},
	}))
	return l
}

func TestRunOnce(t *testing.T) {
	clk := clock.Fake(epoch)
	l := seeded(t, clk)
	ctx := context.Background()

	_, err := l.TryReserve(ctx, model.SeatRef{EventID: "ev", SeatID: "A1"}, "alice", time.Minute)
	require.NoError(t, err)

	s := NewSweeper(l, clk, time.Second, 0, discard())

	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.Advance(time.Minute)
	n, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunSweepsOnTick(t *testing.T) {
	clk := clock.Fake(epoch)
	l := seeded(t, clk)
	ref := model.SeatRef{EventID: "ev", SeatID: "A2"}

	_, err := l.TryReserve(context.Background(), ref, "alice", 5*time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(l, clk, 2*time.Second, time.Second, discard()).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		clk.Advance(2 * time.Second)
		seat, err := l.GetSeat(context.Background(), ref)
		return err == nil && seat.Status == model.SeatAvailable
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

type failingExpirer struct{}

func (failingExpirer) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, ledger.ErrUnavailable
}

func TestRunOnceReportsFailure(t *testing.T) {
	s := NewSweeper(failingExpirer{}, clock.Fake(epoch), 0, 0, discard())
	assert.Equal(t, DefaultInterval, s.interval)

	_, err := s.RunOnce(context.Background())
	assert.True(t, errors.Is(err, ledger.ErrUnavailable))
}
