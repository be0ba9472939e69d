package model

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
)

func TestSeatLapsedAndEffective(t *testing.T) {
    now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
    until := now.Add(time.Minute)
    s := Seat{
        Ref:           SeatRef{EventID: "e1", SeatID: "A1"},
        Status:        SeatReserved,
        Holder:        "buyer-1",
        ReservedUntil: &until,
    }

    assert.False(t, s.Lapsed(now))
    assert.True(t, s.HeldBy("buyer-1", now))
    assert.False(t, s.HeldBy("buyer-2", now))
    assert.Equal(t, SeatReserved, s.Effective(now).Status)

    // expiry is exclusive: at reserved_until the hold has lapsed
    assert.True(t, s.Lapsed(until))
    eff := s.Effective(until)
    assert.Equal(t, SeatAvailable, eff.Status)
    assert.Empty(t, eff.Holder)
    assert.Nil(t, eff.ReservedUntil)
    assert.Equal(t, SeatReserved, s.Status, "Effective must not mutate the receiver")
}

func TestSoldSeatNeverLapses(t *testing.T) {
    s := Seat{Status: SeatSold, Holder: "buyer-1", TicketID: "t-1"}
    assert.False(t, s.Lapsed(time.Now()))
    assert.Equal(t, SeatSold, s.Effective(time.Now()).Status)
}
