package tiki

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHold = 2 * time.Second

// holdFor simulates a continuous press from start, ticking every 100ms, and
// returns every non-None event observed.
func holdFor(s *SleepController, start time.Time, d time.Duration) []SleepEvent {
	var events []SleepEvent
	for dt := time.Duration(0); dt <= d; dt += 100 * time.Millisecond {
		if ev := s.Update(true, start.Add(dt)); ev != SleepNone {
			events = append(events, ev)
		}
	}
	return events
}

func TestLongPressSleepsExactlyOnce(t *testing.T) {
	s := NewSleepController(testHold)
	t0 := time.Unix(100, 0)

	// Held for 5s: one sleep transition at the threshold, never a second.
	events := holdFor(s, t0, 5*time.Second)
	require.Equal(t, []SleepEvent{SleepEntered}, events)
	assert.True(t, s.Asleep())

	// Releasing after the long press is not a short press.
	assert.Equal(t, SleepNone, s.Update(false, t0.Add(5100*time.Millisecond)))
	assert.True(t, s.Asleep())
}

func TestShortPressAdvancesPattern(t *testing.T) {
	s := NewSleepController(testHold)
	t0 := time.Unix(100, 0)

	assert.Equal(t, SleepNone, s.Update(true, t0))
	assert.Equal(t, SleepShortPress, s.Update(false, t0.Add(300*time.Millisecond)))
	assert.False(t, s.Asleep())
}

func TestWakeFiresOnPressEdge(t *testing.T) {
	s := NewSleepController(testHold)
	t0 := time.Unix(100, 0)

	holdFor(s, t0, 2100*time.Millisecond)
	require.True(t, s.Asleep())
	s.Update(false, t0.Add(3*time.Second))

	// Wake happens on the press, not the release.
	assert.Equal(t, SleepWoke, s.Update(true, t0.Add(4*time.Second)))
	assert.False(t, s.Asleep())

	// The waking press is consumed: holding it past the threshold does
	// not immediately re-sleep, and its release is not a short press.
	events := holdFor(s, t0.Add(4100*time.Millisecond), 3*time.Second)
	assert.Empty(t, events)
	assert.Equal(t, SleepNone, s.Update(false, t0.Add(8*time.Second)))
	assert.False(t, s.Asleep())
}

func TestReleaseResetsLongPressTracking(t *testing.T) {
	s := NewSleepController(testHold)
	t0 := time.Unix(100, 0)

	// Two sub-threshold holds separated by a release never sleep.
	holdFor(s, t0, 1500*time.Millisecond)
	s.Update(false, t0.Add(1600*time.Millisecond))
	events := holdFor(s, t0.Add(2*time.Second), 1500*time.Millisecond)
	assert.Empty(t, events)
	assert.False(t, s.Asleep())

	// A full hold after the resets still works.
	s.Update(false, t0.Add(4*time.Second))
	events = holdFor(s, t0.Add(5*time.Second), 2500*time.Millisecond)
	assert.Equal(t, []SleepEvent{SleepEntered}, events)
}
