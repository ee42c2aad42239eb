package tiki

import "time"

// AutoCycler advances patterns on a fixed interval. It is the degraded mode
// the daemon falls into when the input peripheral is absent at boot: the
// sculpture loses interactivity but keeps animating and syncing.
type AutoCycler struct {
	interval time.Duration
	next     time.Time
}

// NewAutoCycler creates a cycler that first fires one interval from now.
func NewAutoCycler(interval time.Duration, now time.Time) *AutoCycler {
	return &AutoCycler{
		interval: interval,
		next:     now.Add(interval),
	}
}

// Tick reports whether it is time to advance to the next pattern.
func (a *AutoCycler) Tick(now time.Time) bool {
	if now.Before(a.next) {
		return false
	}
	a.next = now.Add(a.interval)
	return true
}
