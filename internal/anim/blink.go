package anim

import (
	"log/slog"
	"math/rand"
	"time"
)

// BlinkPhase is the current stage of an eye blink.
type BlinkPhase uint8

const (
	BlinkIdle BlinkPhase = iota
	BlinkClosing
	BlinkHold
	BlinkOpening

	blinkPhaseCount
)

func (p BlinkPhase) String() string {
	switch p {
	case BlinkIdle:
		return "idle"
	case BlinkClosing:
		return "closing"
	case BlinkHold:
		return "hold"
	case BlinkOpening:
		return "opening"
	default:
		return "invalid"
	}
}

// BlinkConfig holds the blink timing constants.
type BlinkConfig struct {
	// CloseDuration is how long the eyes take to fade down.
	CloseDuration time.Duration
	// HoldDuration is how long the eyes stay at minimum brightness.
	HoldDuration time.Duration
	// OpenDuration is how long the eyes take to fade back up.
	OpenDuration time.Duration
	// MaxDrop is how far the brightness factor falls from 1.0. Keeping it
	// below 1.0 leaves a floor so a corrupted blink can never park the eyes
	// fully dark.
	MaxDrop float64
	// MinInterval and MaxInterval bound the randomized pause between blinks.
	MinInterval time.Duration
	MaxInterval time.Duration
}

// DefaultBlinkConfig returns the stock blink timing.
func DefaultBlinkConfig() BlinkConfig {
	return BlinkConfig{
		CloseDuration: 200 * time.Millisecond,
		HoldDuration:  80 * time.Millisecond,
		OpenDuration:  200 * time.Millisecond,
		MaxDrop:       0.85,
		MinInterval:   2 * time.Second,
		MaxInterval:   7 * time.Second,
	}
}

// Bounds used by the self-healing check. The blink runs on wall-clock deltas
// that a peer sync can yank around, so any timing outside these bounds is
// treated as corrupt state rather than something to wait out.
const (
	maxPhaseDuration = time.Second
	maxPhaseOverrun  = 3 * time.Second
	maxFutureStart   = time.Second
)

// Blink fades the eye brightness down and back up on a randomized schedule,
// independent of which pattern is active.
type Blink struct {
	cfg    BlinkConfig
	rng    *rand.Rand
	logger *slog.Logger

	phase      BlinkPhase
	factor     float64
	phaseStart time.Time
	phaseEnd   time.Time
	nextDue    time.Time
}

// NewBlink creates a blink machine in the Idle phase. The logger may be nil.
func NewBlink(cfg BlinkConfig, logger *slog.Logger) *Blink {
	return &Blink{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: logger,
		factor: 1.0,
	}
}

// Factor is the current eye brightness multiplier in (0, 1].
func (b *Blink) Factor() float64 { return b.factor }

// Phase is the current blink phase.
func (b *Blink) Phase() BlinkPhase { return b.phase }

// Reset forces the machine to Idle at full brightness and schedules a fresh
// blink. Called on pattern change, wake, and invariant violations.
func (b *Blink) Reset(now time.Time) {
	b.phase = BlinkIdle
	b.factor = 1.0
	b.phaseStart = time.Time{}
	b.phaseEnd = time.Time{}
	b.schedule(now)
}

func (b *Blink) schedule(now time.Time) {
	span := b.cfg.MaxInterval - b.cfg.MinInterval
	wait := b.cfg.MinInterval
	if span > 0 {
		wait += time.Duration(b.rng.Int63n(int64(span)))
	}
	b.nextDue = now.Add(wait)
}

// valid checks the timing invariants before any transition runs.
func (b *Blink) valid(now time.Time) bool {
	if b.phase >= blinkPhaseCount {
		return false
	}
	if b.phase == BlinkIdle {
		return true
	}
	if b.phaseEnd.Before(b.phaseStart) {
		return false
	}
	if b.phaseEnd.Sub(b.phaseStart) > maxPhaseDuration {
		return false
	}
	if b.phaseStart.After(now.Add(maxFutureStart)) {
		return false
	}
	if now.Sub(b.phaseEnd) > maxPhaseOverrun {
		return false
	}
	return true
}

// Tick advances the blink machine. Corrupt state heals to Idle instead of
// hanging the eyes mid-fade.
func (b *Blink) Tick(now time.Time) {
	if !b.valid(now) {
		if b.logger != nil {
			b.logger.Debug(
				"blink state out of bounds, resetting",
				"phase", b.phase,
				"phase_start", b.phaseStart,
				"phase_end", b.phaseEnd)
		}
		b.Reset(now)
		return
	}

	switch b.phase {
	case BlinkIdle:
		b.factor = 1.0
		if b.nextDue.IsZero() {
			b.schedule(now)
			return
		}
		if !now.Before(b.nextDue) {
			b.phase = BlinkClosing
			b.phaseStart = now
			b.phaseEnd = now.Add(b.cfg.CloseDuration)
		}

	case BlinkClosing:
		b.factor = 1.0 - b.cfg.MaxDrop*b.progress(now)
		if !now.Before(b.phaseEnd) {
			b.factor = 1.0 - b.cfg.MaxDrop
			b.phase = BlinkHold
			b.phaseStart = now
			b.phaseEnd = now.Add(b.cfg.HoldDuration)
		}

	case BlinkHold:
		b.factor = 1.0 - b.cfg.MaxDrop
		if !now.Before(b.phaseEnd) {
			b.phase = BlinkOpening
			b.phaseStart = now
			b.phaseEnd = now.Add(b.cfg.OpenDuration)
		}

	case BlinkOpening:
		b.factor = 1.0 - b.cfg.MaxDrop*(1.0-b.progress(now))
		if !now.Before(b.phaseEnd) {
			b.factor = 1.0
			b.phase = BlinkIdle
			b.schedule(now)
		}
	}
}

// progress is the position within the current phase, clamped to [0, 1].
func (b *Blink) progress(now time.Time) float64 {
	total := b.phaseEnd.Sub(b.phaseStart)
	if total <= 0 {
		return 1.0
	}
	p := float64(now.Sub(b.phaseStart)) / float64(total)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
