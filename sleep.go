package tiki

import "time"

// SleepEvent is what one SleepController update observed.
type SleepEvent uint8

const (
	// SleepNone means nothing happened this tick.
	SleepNone SleepEvent = iota
	// SleepEntered means a long hold just put the sculpture to sleep.
	SleepEntered
	// SleepWoke means a press just woke the sculpture.
	SleepWoke
	// SleepShortPress means the button was released before the hold
	// threshold while awake; the daemon treats it as "next pattern".
	SleepShortPress
)

// SleepController is a two-state gate driven by the pattern button. A long
// hold puts the sculpture to sleep; any press wakes it. Transitions fire on
// edges only, so a sustained hold can never re-trigger.
type SleepController struct {
	holdThreshold time.Duration

	asleep           bool
	prev             bool
	pressStart       time.Time
	longPressHandled bool
}

// NewSleepController creates a controller with the given hold threshold.
func NewSleepController(holdThreshold time.Duration) *SleepController {
	return &SleepController{holdThreshold: holdThreshold}
}

// Asleep reports whether the sculpture is asleep.
func (s *SleepController) Asleep() bool { return s.asleep }

// Update consumes this tick's sampled button state and returns at most one
// event. Wake fires on the press edge, not the release, so the sculpture
// responds the instant it is touched; that press is then consumed and its
// release does nothing.
func (s *SleepController) Update(pressed bool, now time.Time) SleepEvent {
	defer func() { s.prev = pressed }()

	if pressed && !s.prev {
		if s.asleep {
			s.asleep = false
			s.pressStart = now
			s.longPressHandled = true
			return SleepWoke
		}
		s.pressStart = now
		s.longPressHandled = false
		return SleepNone
	}

	if pressed && !s.asleep && !s.longPressHandled &&
		!s.pressStart.IsZero() && now.Sub(s.pressStart) >= s.holdThreshold {
		s.longPressHandled = true
		s.asleep = true
		return SleepEntered
	}

	if !pressed && s.prev {
		wasShort := !s.longPressHandled && !s.pressStart.IsZero()
		s.pressStart = time.Time{}
		s.longPressHandled = false
		if !s.asleep && wasShort {
			return SleepShortPress
		}
	}

	return SleepNone
}
