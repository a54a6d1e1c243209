package sampler

import "time"

// Clock is the monotonic time source of the scheduler. Now returns the time
// elapsed since the clock's origin; it must never go backwards.
type Clock interface {
	Now() time.Duration
	Sleep(d time.Duration)
}

// SystemClock reads the Go runtime monotonic clock. Its origin is the moment
// it was created, so a clock created at startup measures time since process
// start.
type SystemClock struct {
	origin time.Time
}

func NewSystemClock() *SystemClock { return &SystemClock{origin: time.Now()} }

func (c *SystemClock) Now() time.Duration { return time.Since(c.origin) }

func (c *SystemClock) Sleep(d time.Duration) { time.Sleep(d) }
