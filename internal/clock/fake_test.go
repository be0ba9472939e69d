package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFakeNowOnlyMovesOnAdvance(t *testing.T) {
	c := Fake(epoch)
	assert.Equal(t, epoch, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, epoch.Add(90*time.Second), c.Now())
}

func TestFakeTickerFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	tk := c.NewTicker(time.Second)
	defer tk.Stop()

	select {
	case <-tk.C:
		t.Fatal("ticker fired before the clock moved")
	default:
	}

	c.Advance(time.Second)
	select {
	case at := <-tk.C:
		assert.Equal(t, epoch.Add(time.Second), at)
	default:
		t.Fatal("expected a tick after advancing one interval")
	}
}

func TestFakeTickerDropsWhenFull(t *testing.T) {
	c := Fake(epoch)
	tk := c.NewTicker(time.Second)

	c.Advance(5 * time.Second)
	require.Len(t, tk.C, 1)
	<-tk.C

	c.Advance(time.Second)
	at := <-tk.C
	assert.Equal(t, epoch.Add(6*time.Second), at)
}

func TestFakeTickerStop(t *testing.T) {
	c := Fake(epoch)
	tk := c.NewTicker(time.Second)
	tk.Stop()

	c.Advance(3 * time.Second)
	assert.Len(t, tk.C, 0)
}
