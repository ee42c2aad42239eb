package anim

import (
	"time"

	"github.com/samuelclay/tiki/internal/colorwheel"
)

const (
	// SnapThreshold is the circular distance at or below which the current
	// hue jumps straight to the target instead of stepping. Without it the
	// step size rounding can oscillate around the target forever.
	SnapThreshold = 3

	farDistance = 60
	midDistance = 30

	// DefaultStepInterval is the minimum delay between hue steps.
	DefaultStepInterval = 15 * time.Millisecond
)

// Transition moves Current toward Target along the shorter arc of the color
// wheel, one bounded step per tick.
type Transition struct {
	Current uint8
	Target  uint8

	// StepInterval is the minimum time between steps. Zero means
	// DefaultStepInterval.
	StepInterval time.Duration

	lastStep time.Time
}

// Converged reports whether Current has reached Target.
func (t *Transition) Converged() bool { return t.Current == t.Target }

// Set collapses the transition onto a single hue. Used when a peer update
// lands: drifting toward a stale target right after converging would be
// visible across the fleet.
func (t *Transition) Set(hue uint8) {
	t.Current = hue
	t.Target = hue
}

// Tick advances Current one step toward Target and reports whether Current
// changed. It is a no-op when already converged or when called faster than
// the step interval allows.
func (t *Transition) Tick(now time.Time) bool {
	if t.Current == t.Target {
		return false
	}

	interval := t.StepInterval
	if interval == 0 {
		interval = DefaultStepInterval
	}
	if !t.lastStep.IsZero() && now.Sub(t.lastStep) < interval {
		return false
	}
	t.lastStep = now

	dist := colorwheel.Distance(t.Current, t.Target)
	if dist <= SnapThreshold {
		t.Current = t.Target
		return true
	}

	step := uint8(1)
	switch {
	case dist > farDistance:
		step = 3
	case dist > midDistance:
		step = 2
	}

	// uint8 subtraction wraps mod 256, so <= 128 means the upward arc is
	// the shorter one (ties go upward).
	if t.Target-t.Current <= 128 {
		t.Current += step
	} else {
		t.Current -= step
	}
	return true
}
