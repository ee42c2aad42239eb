// Package anim holds the timing state machines behind the sculpture's face:
// per-pattern frame clocks, the eye-blink fade, and the hue transition engine.
package anim

import "time"

// Clock gates how often a pattern is allowed to redraw. The zero value fires
// on the first Ready call.
type Clock struct {
	interval time.Duration
	last     time.Time
}

// NewClock creates a clock that fires at most once per interval.
func NewClock(interval time.Duration) Clock {
	return Clock{interval: interval}
}

// Ready reports whether enough time has elapsed since the last frame and, if
// so, stamps the clock.
func (c *Clock) Ready(now time.Time) bool {
	if !c.last.IsZero() && now.Sub(c.last) < c.interval {
		return false
	}
	c.last = now
	return true
}

// Reset makes the next Ready call fire immediately.
func (c *Clock) Reset() {
	c.last = time.Time{}
}
