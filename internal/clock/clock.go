// Package clock provides an injectable time source. Lifecycle managers and
// the scheduler depend on the Clock interface rather than calling time.Now
// or time.After directly, so tests can control the passage of time instead
// of sleeping in wall-clock time.
package clock

import "time"

// Clock abstracts wall-clock time and timers.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
	NewTicker(d time.Duration) Ticker
}

// Ticker abstracts time.Ticker so it can be faked in tests.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real is the Clock backed by the standard library.
type Real struct{}

// New returns the real, wall-clock-backed Clock.
func New() Clock {
	return Real{}
}

func (Real) Now() time.Time { return time.Now() }

func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (Real) Sleep(d time.Duration) { time.Sleep(d) }

func (Real) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }
