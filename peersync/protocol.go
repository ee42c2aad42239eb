package peersync

import (
	"log/slog"
	"time"
)

// Config holds the protocol timing constants.
type Config struct {
	// FastInterval is the broadcast cadence right after a state change.
	FastInterval time.Duration
	// NormalInterval is the steady-state broadcast cadence.
	NormalInterval time.Duration
	// FastWindow is how long fast mode lasts after the last state change.
	FastWindow time.Duration
	// AlignWindow bounds normal-mode sends to the start of each logical
	// second, so a fleet of devices does not broadcast at arbitrary
	// offsets and flood the channel.
	AlignWindow time.Duration
	// Promotion is how far the logical clock jumps ahead on a local
	// change. The jump is what makes the touched device win convergence.
	Promotion time.Duration
	// TransitDelay is the assumed time a broadcast spends in flight,
	// folded into the clock adopted from a winning peer.
	TransitDelay time.Duration
	// MaxSendFailures is how many consecutive send errors are tolerated
	// before the transport is reinitialized.
	MaxSendFailures int
}

// DefaultConfig returns the stock protocol timing.
func DefaultConfig() Config {
	return Config{
		FastInterval:    100 * time.Millisecond,
		NormalInterval:  time.Second,
		FastWindow:      30 * time.Second,
		AlignWindow:     100 * time.Millisecond,
		Promotion:       2 * time.Second,
		TransitDelay:    50 * time.Millisecond,
		MaxSendFailures: 5,
	}
}

// Protocol owns the logical clock and decides when to broadcast and whether
// a received message wins over local state.
//
// Protocol is not internally synchronized: the daemon serializes every call
// behind its state mutex, including calls made from the receive goroutine.
type Protocol struct {
	cfg       Config
	transport Transport
	logger    *slog.Logger

	bootTime  time.Time
	fastUntil time.Time
	lastSend  time.Time
	pending   bool
	suspended bool
	failures  int
}

// New creates a protocol whose logical clock starts at zero as of now.
// The logger may be nil.
func New(cfg Config, transport Transport, logger *slog.Logger, now time.Time) *Protocol {
	if logger == nil {
		logger = slog.Default()
	}
	return &Protocol{
		cfg:       cfg,
		transport: transport,
		logger:    logger,
		bootTime:  now,
	}
}

// Now returns the logical clock: whole seconds since this device's boot
// reference. The reference is deliberately movable, see Promote.
func (p *Protocol) Now(now time.Time) uint32 {
	elapsed := now.Sub(p.bootTime)
	if elapsed < 0 {
		return 0
	}
	return uint32(elapsed / time.Second)
}

// Promote rewinds the boot reference so the logical clock jumps ahead of
// peers that have not changed recently. Called on every local state change
// (button, encoder, pattern change); it stands in for leader election.
func (p *Protocol) Promote(now time.Time) {
	p.bootTime = p.bootTime.Add(-p.cfg.Promotion)
	p.enterFastMode(now)
}

// Pending reports whether a clock jump or adopted peer state is waiting for
// its first broadcast window. The hue transition engine is skipped while
// pending so the face does not drift toward a stale target right before an
// authoritative update propagates.
func (p *Protocol) Pending() bool { return p.pending }

// FastMode reports whether the elevated broadcast cadence is active.
func (p *Protocol) FastMode(now time.Time) bool {
	return now.Before(p.fastUntil)
}

// SuspendOutbound gates the outward half of the protocol. While suspended
// (device asleep) no broadcasts go out, but inbound reconciliation and the
// clock keep running so the device stays eligible to wake in sync.
func (p *Protocol) SuspendOutbound(suspended bool) {
	p.suspended = suspended
}

// Receive compares a peer's claimed timestamp against the local logical
// clock. A larger claim wins: the local clock is re-based onto the sender's
// (plus assumed transit delay) and the caller must overwrite its visual
// state from the message. A smaller or equal claim means local state is at
// least as fresh, and the message is discarded; this is also what swallows
// our own broadcasts looping back.
func (p *Protocol) Receive(msg Message, now time.Time) bool {
	if msg.Timestamp <= p.Now(now) {
		return false
	}
	p.bootTime = now.
		Add(-time.Duration(msg.Timestamp) * time.Second).
		Add(-p.cfg.TransitDelay)
	return true
}

// NoteRemoteChange marks that adopted peer state actually changed something
// locally: the receiver now holds information worth re-propagating, so it
// enters fast mode itself.
func (p *Protocol) NoteRemoteChange(now time.Time) {
	p.enterFastMode(now)
}

func (p *Protocol) enterFastMode(now time.Time) {
	p.fastUntil = now.Add(p.cfg.FastWindow)
	p.pending = true
}

// Tick broadcasts the state returned by snapshot if a send window is open.
// Call once per scheduler tick.
func (p *Protocol) Tick(now time.Time, snapshot func() (pattern, brightness, hue uint8)) {
	if !p.shouldSend(now) {
		return
	}
	pattern, brightness, hue := snapshot()
	p.send(Message{
		Timestamp:  p.Now(now),
		Pattern:    pattern,
		Brightness: brightness,
		Hue:        hue,
	}, now)
}

// shouldSend applies the cadence rules: fast mode sends every FastInterval;
// normal mode sends at most once per NormalInterval, and only within the
// AlignWindow at the start of a logical second. A pending flag set by a
// clock jump skips exactly one otherwise-eligible window, which keeps an
// instantaneous jump from turning into a broadcast storm.
func (p *Protocol) shouldSend(now time.Time) bool {
	if p.suspended {
		return false
	}

	if p.FastMode(now) {
		if !p.lastSend.IsZero() && now.Sub(p.lastSend) < p.cfg.FastInterval {
			return false
		}
	} else {
		if !p.lastSend.IsZero() && now.Sub(p.lastSend) < p.cfg.NormalInterval-p.cfg.AlignWindow {
			return false
		}
		if now.Sub(p.bootTime)%time.Second > p.cfg.AlignWindow {
			return false
		}
	}

	if p.pending {
		p.pending = false
		return false
	}
	return true
}

func (p *Protocol) send(msg Message, now time.Time) {
	raw, err := msg.MarshalBinary()
	if err != nil {
		p.logger.Warn("failed to encode sync message", "error", err)
		return
	}

	if err := p.transport.Send(raw); err != nil {
		p.failures++
		p.logger.Warn(
			"sync broadcast failed",
			"error", err,
			"consecutive", p.failures)

		if p.failures >= p.cfg.MaxSendFailures {
			p.failures = 0
			p.logger.Info("reinitializing sync transport")
			if err := p.transport.Reinit(); err != nil {
				// Not fatal: the device degrades to pattern-only local
				// operation and keeps trying on later sends.
				p.logger.Warn("sync transport reinit failed", "error", err)
			}
		}
		return
	}

	p.failures = 0
	p.lastSend = now
}
