package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial.  Time only moves when Advance
// or Set is called.  FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// FakeClock is a deterministic Clock for tests.  Tickers created from it
// fire during Advance, once per elapsed interval, with the same
// drop-when-full behaviour as time.Ticker.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	tickers []*fakeTicker
}

type fakeTicker struct {
	next     time.Time
	interval time.Duration
	channel  chan time.Time
	stopped  bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NewTicker registers a ticker that fires as the clock advances.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ft := &fakeTicker{
		next:     c.current.Add(d),
		interval: d,
		channel:  make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, ft)
	return &Ticker{
		C: ft.channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ft.stopped = true
		},
	}
}

// Advance moves the clock forward by d and fires every ticker whose
// deadline was crossed.
func (c *FakeClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// Set moves the clock to t.  Moving backwards is allowed and fires nothing.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = t
	live := c.tickers[:0]
	for _, ft := range c.tickers {
		if ft.stopped {
			continue
		}
		for !ft.next.After(t) {
			select {
			case ft.channel <- ft.next:
			default:
			}
			ft.next = ft.next.Add(ft.interval)
		}
		live = append(live, ft)
	}
	c.tickers = live
}
