// Package clock abstracts time so that hold expiry can be tested
// deterministically.  Production code injects Real(); tests inject Fake()
// and move time forward explicitly with Advance.
package clock

import "time"

// Clock is the time source consumed by the ledger, the engine and the
// sweeper.  Expiry comparisons must only ever use Now from the injected
// clock, never time.Now directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a Ticker delivering ticks every d.  Panics if
	// d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer.  C has capacity 1; ticks are dropped when
// the consumer falls behind.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker.  It does not close C.
func (t *Ticker) Stop() { t.stopFunc() }
