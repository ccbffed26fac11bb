// Package clock provides the monotonic time source shared by the input
// buffer, the judgment engine and the runners so their timestamps compare.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock samples monotonic time as an offset from the clock's origin.
type Clock interface {
	// Now returns the elapsed time since the clock's origin.
	Now() time.Duration
	// After waits for the duration to elapse and then sends on the returned channel.
	After(d time.Duration) <-chan time.Time
	// NewTimer creates a timer on the underlying time source.
	NewTimer(d time.Duration) clockwork.Timer
	// Source exposes the underlying clockwork clock.
	Source() clockwork.Clock
}

type monotonic struct {
	src    clockwork.Clock
	origin time.Time
}

// New wraps a clockwork clock. The origin is fixed at construction.
func New(src clockwork.Clock) Clock {
	if src == nil {
		src = clockwork.NewRealClock()
	}
	return &monotonic{src: src, origin: src.Now()}
}

// NewReal returns a clock backed by the wall clock's monotonic reading.
func NewReal() Clock {
	return New(clockwork.NewRealClock())
}

func (m *monotonic) Now() time.Duration {
	return m.src.Since(m.origin)
}

func (m *monotonic) After(d time.Duration) <-chan time.Time {
	return m.src.After(d)
}

func (m *monotonic) NewTimer(d time.Duration) clockwork.Timer {
	return m.src.NewTimer(d)
}

func (m *monotonic) Source() clockwork.Clock {
	return m.src
}

// Seconds converts a clock sample to fractional seconds.
func Seconds(d time.Duration) float64 {
	return d.Seconds()
}
