// Package tiki is the daemon behind a battery of LED tiki sculptures: it
// animates the face zones of an addressable strip, reads a rotary encoder
// and button peripheral, and keeps a fleet of independently-booted
// sculptures converged on the same look over a broadcast channel.
package tiki

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"

	"github.com/samuelclay/tiki/inputserial"
	"github.com/samuelclay/tiki/internal/anim"
	"github.com/samuelclay/tiki/internal/pattern"
	"github.com/samuelclay/tiki/ledserial"
	"github.com/samuelclay/tiki/peersync"
)

// brightnessLadder is the cycle the brightness button steps through.
var brightnessLadder = []uint8{255, 180, 120, 70, 30}

// Daemon is the main tiki daemon.
type Daemon struct {
	cfg    *Config
	logger *slog.Logger
}

// NewDaemon creates a new tiki daemon.
func NewDaemon(cfg *Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &Daemon{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run starts the daemon. It blocks until the given context is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	return (&internalDaemon{Daemon: d}).Run(ctx)
}

type internalDaemon struct {
	*Daemon

	port      serial.Port            // LED controller, required
	cmdW      io.Writer              // command sink, the LED port in production
	inputPort serial.Port            // nil when the peripheral is absent
	transport *peersync.UDPTransport // nil when sync is off or unavailable

	sampler inputserial.Sampler

	// mu guards everything below. The sync receive callback runs on the
	// transport's goroutine concurrently with the main loop; it performs
	// only short scalar updates under the lock and never renders or
	// broadcasts.
	mu        sync.Mutex
	state     DeviceState
	proto     *peersync.Protocol
	blink     *anim.Blink
	sleep     *SleepController
	auto      *AutoCycler
	renderers []pattern.Renderer
	clocks    []anim.Clock
	face      Face
	rng       *rand.Rand

	prevEncoder int32
	haveEncoder bool
	prevBright  bool

	frameDirty      bool
	brightnessDirty bool
	blanked         bool
}

const ledOpenRetries = 3

func (d *internalDaemon) Run(ctx context.Context) error {
	var port serial.Port
	var err error
	for attempt := 1; attempt <= ledOpenRetries; attempt++ {
		port, err = serial.Open(d.cfg.Device, &serial.Mode{
			BaudRate: d.cfg.Baud,
		})
		if err == nil {
			break
		}
		d.logger.Warn(
			"failed to open LED controller",
			"attempt", attempt,
			"error", err)
		if attempt < ledOpenRetries {
			time.Sleep(time.Second)
		}
	}
	if err != nil {
		// The one fatal failure: without the strip there is nothing
		// meaningful left to do.
		return errors.Wrap(err, "failed to open LED controller")
	}
	defer port.Close()
	d.port = port
	d.cmdW = port

	now := time.Now()
	d.openInput(now)
	d.openTransport(now)

	d.state = NewDeviceState(d.cfg.Brightness)
	d.blink = anim.NewBlink(d.cfg.Blink.animConfig(), d.logger)
	d.blink.Reset(now)
	d.sleep = NewSleepController(time.Duration(d.cfg.Input.HoldThreshold))
	d.renderers = pattern.All()
	d.clocks = make([]anim.Clock, len(d.renderers))
	for i, r := range d.renderers {
		d.clocks[i] = anim.NewClock(r.Interval())
	}
	d.face = NewFace(d.cfg.Zones)
	d.rng = rand.New(rand.NewSource(now.UnixNano()))
	d.brightnessDirty = true

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		<-ctx.Done()
		d.logger.Debug("closing device handles")
		port.Close()
		if d.inputPort != nil {
			d.inputPort.Close()
		}
		if d.transport != nil {
			d.transport.Close()
		}
		return ctx.Err()
	})
	errg.Go(func() error {
		return d.mainLoop(ctx)
	})
	errg.Go(func() error {
		return d.readEvents(ctx)
	})
	if d.inputPort != nil {
		errg.Go(func() error {
			return d.readInput(ctx)
		})
	}
	if d.transport != nil {
		errg.Go(func() error {
			return d.transport.Listen(ctx, d.handleSyncPayload)
		})
	}

	return errg.Wait()
}

// openInput opens the encoder peripheral with bounded retries. Absence is
// not fatal: the daemon degrades to autonomous pattern cycling.
func (d *internalDaemon) openInput(now time.Time) {
	cfg := d.cfg.Input
	autoCycle := time.Duration(cfg.AutoCycleInterval)

	if cfg.Device == "" {
		d.logger.Info("no input peripheral configured, cycling patterns autonomously")
		d.auto = NewAutoCycler(autoCycle, now)
		return
	}

	var err error
	for attempt := 1; attempt <= cfg.OpenRetries; attempt++ {
		var port serial.Port
		port, err = serial.Open(cfg.Device, &serial.Mode{BaudRate: cfg.Baud})
		if err == nil {
			d.inputPort = port
			return
		}
		d.logger.Warn(
			"failed to open input peripheral",
			"attempt", attempt,
			"error", err)
		if attempt < cfg.OpenRetries {
			time.Sleep(time.Second)
		}
	}

	d.logger.Warn("input peripheral absent, cycling patterns autonomously", "error", err)
	d.auto = NewAutoCycler(autoCycle, now)
}

// openTransport brings up the sync channel. Failure is not fatal: the
// sculpture degrades to pattern-only local operation.
func (d *internalDaemon) openTransport(now time.Time) {
	if d.cfg.Sync.Disabled {
		d.logger.Info("peer sync disabled")
		return
	}

	transport, err := peersync.NewUDPTransport(d.cfg.Sync.udpConfig(), d.logger)
	if err != nil {
		d.logger.Warn("peer sync unavailable, running standalone", "error", err)
		return
	}

	d.transport = transport
	d.proto = peersync.New(d.cfg.Sync.protocolConfig(), transport, d.logger, now)
}

func (d *internalDaemon) mainLoop(ctx context.Context) error {
	d.logger.Debug("waiting 100ms for the read loop to start...")
	time.Sleep(100 * time.Millisecond)

	d.logger.Debug("sending initialize command")
	if !d.writeCommand(ledserial.InitializeCommand{
		NumLEDs: uint16(d.cfg.Zones.NumLEDs()),
	}) {
		return errors.New("failed to initialize LED strip")
	}
	d.writeCommand(ledserial.ClearCommand{})

	ticker := time.NewTicker(time.Second / time.Duration(d.cfg.Rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			d.tick(now)
		}
	}
}

// tick is one pass of the cooperative scheduler: sample input, gate on
// sleep, advance the hue transition and blink machines, render the active
// pattern when its clock fires, and give the sync protocol a chance to
// broadcast. Serial writes happen after the lock is released.
func (d *internalDaemon) tick(now time.Time) {
	d.mu.Lock()

	if report, ok := d.sampler.Sample(); ok {
		d.handleInput(report, now)
	} else if d.auto != nil && !d.sleep.Asleep() && d.auto.Tick(now) {
		d.advancePattern(now)
	}

	if d.sleep.Asleep() {
		// Animation and rendering are suspended. Inbound sync keeps
		// running on the receive goroutine so the sculpture stays
		// logically in step with the fleet.
		blank := !d.blanked
		d.blanked = true
		if blank {
			// Keep the local buffer in step with the strip, so the wake
			// render starts from black instead of the pre-sleep frame.
			d.face.Strip.Clear()
		}
		d.mu.Unlock()
		if blank {
			d.writeCommand(ledserial.ClearCommand{})
		}
		return
	}
	d.blanked = false

	// Hold the hue still while adopted or just-promoted state waits for
	// its broadcast window; stepping toward a stale target here would be
	// visible right as the fleet converges.
	if d.proto == nil || !d.proto.Pending() {
		d.state.Hue.Tick(now)
	}
	d.blink.Tick(now)

	if p := d.state.Pattern; int(p) < len(d.renderers) && d.clocks[p].Ready(now) {
		frame := pattern.Frame{
			Teeth:    d.face.Teeth,
			LeftEye:  d.face.LeftEye,
			RightEye: d.face.RightEye,
			Palette: pattern.Palette{
				Hue:          d.state.Hue.Current,
				UseCustomHue: d.state.UseCustomHue,
			},
			BlinkFactor: d.blink.Factor(),
			Now:         now,
		}
		d.renderers[p].Render(&frame)
		d.frameDirty = true
	}

	if d.proto != nil {
		d.proto.Tick(now, func() (uint8, uint8, uint8) {
			return d.state.Pattern, d.state.Brightness, d.state.Hue.Current
		})
	}

	frameDirty := d.frameDirty
	brightnessDirty := d.brightnessDirty
	d.frameDirty = false
	d.brightnessDirty = false

	var pix []uint8
	if frameDirty {
		pix = append([]uint8(nil), d.face.Strip.AsPixels()...)
	}
	brightness := d.state.Brightness

	d.mu.Unlock()

	if brightnessDirty {
		d.writeCommand(ledserial.SetBrightnessCommand{Level: brightness})
	}
	if frameDirty {
		d.writeCommand(ledserial.SetCommand{Pix: pix})
	}
}

// handleInput turns this tick's peripheral sample into state changes.
// Called with mu held.
func (d *internalDaemon) handleInput(report inputserial.Report, now time.Time) {
	switch d.sleep.Update(report.Pressed(inputserial.ButtonPattern), now) {
	case SleepEntered:
		d.logger.Info("going to sleep")
		if d.proto != nil {
			d.proto.SuspendOutbound(true)
		}
	case SleepWoke:
		d.logger.Info("waking up")
		d.wake(now)
	case SleepShortPress:
		d.advancePattern(now)
	}

	brightPressed := report.Pressed(inputserial.ButtonBrightness)
	if brightPressed && !d.prevBright && !d.sleep.Asleep() {
		d.stepBrightness(now)
	}
	d.prevBright = brightPressed

	if d.haveEncoder {
		if delta := report.Encoder - d.prevEncoder; delta != 0 && !d.sleep.Asleep() {
			// Four wheel steps per detent; uint8 wrap keeps the hue on
			// the ring.
			d.state.Hue.Target += uint8(delta * 4)
			d.state.UseCustomHue = true
			d.localChange(now)
		}
	}
	d.prevEncoder = report.Encoder
	d.haveEncoder = true
}

// wake resumes from sleep with visible feedback: fresh random pattern and
// hue, reset timers, and an immediate claim on the fleet's attention.
func (d *internalDaemon) wake(now time.Time) {
	if d.proto != nil {
		d.proto.SuspendOutbound(false)
	}
	d.state.Pattern = uint8(d.rng.Intn(int(pattern.Count)))
	d.state.Hue.Set(uint8(d.rng.Intn(256)))
	d.state.UseCustomHue = true
	d.blink.Reset(now)
	d.resetClocks()
	d.brightnessDirty = true
	d.localChange(now)
}

func (d *internalDaemon) advancePattern(now time.Time) {
	d.state.Pattern = (d.state.Pattern + 1) % pattern.Count
	d.blink.Reset(now)
	d.resetClocks()
	d.logger.Debug("pattern changed", "pattern", d.renderers[d.state.Pattern].Name())
	d.localChange(now)
}

func (d *internalDaemon) stepBrightness(now time.Time) {
	next := brightnessLadder[0]
	for i, b := range brightnessLadder {
		if d.state.Brightness == b {
			next = brightnessLadder[(i+1)%len(brightnessLadder)]
			break
		}
	}
	d.state.Brightness = next
	d.brightnessDirty = true
	d.localChange(now)
}

func (d *internalDaemon) resetClocks() {
	for i := range d.clocks {
		d.clocks[i].Reset()
	}
}

// localChange promotes the logical clock so this device wins the next round
// of convergence. Every user-visible state change goes through here.
func (d *internalDaemon) localChange(now time.Time) {
	if d.proto != nil {
		d.proto.Promote(now)
	}
}

// handleSyncPayload is the receive half of the sync protocol. It runs on
// the transport's goroutine: decode, compare timestamps, overwrite scalars,
// get out. Rendering picks the new state up on the next tick.
func (d *internalDaemon) handleSyncPayload(raw []byte) {
	var msg peersync.Message
	if err := msg.UnmarshalBinary(raw); err != nil {
		d.logger.Debug("dropping malformed sync message", "error", err)
		return
	}

	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.proto.Receive(msg, now) {
		return
	}

	changed := false
	if msg.Pattern < pattern.Count && msg.Pattern != d.state.Pattern {
		d.state.Pattern = msg.Pattern
		d.blink.Reset(now)
		d.resetClocks()
		changed = true
	}
	if msg.Brightness != d.state.Brightness {
		d.state.Brightness = msg.Brightness
		d.brightnessDirty = true
		changed = true
	}
	if msg.Hue != d.state.Hue.Current || !d.state.Hue.Converged() {
		// Collapse current onto target instead of transitioning: devices
		// that just converged must not drift apart chasing different
		// targets.
		d.state.Hue.Set(msg.Hue)
		d.state.UseCustomHue = true
		changed = true
	}

	if changed {
		d.logger.Debug(
			"adopted peer state",
			"timestamp", msg.Timestamp,
			"pattern", msg.Pattern,
			"brightness", msg.Brightness,
			"hue", msg.Hue)
		// The receiver now holds news worth re-propagating.
		d.proto.NoteRemoteChange(now)
	}
}

func (d *internalDaemon) readEvents(ctx context.Context) error {
	if err := d.port.SetReadTimeout(serial.NoTimeout); err != nil {
		return errors.Wrap(err, "failed to reset read timeout")
	}

	for ctx.Err() == nil {
		e, err := ledserial.ReadEvent(d.port)
		if err != nil {
			// A short read indicates a timeout. This is expected.
			// Ignore the error and try again.
			if errors.Is(err, io.EOF) {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			return errors.Wrap(err, "failed to read controller event")
		}

		switch e := e.(type) {
		case ledserial.AckEvent:
			d.logger.Debug(
				"controller acked command",
				"command", e.AckedCommand)
		case ledserial.ErrorEvent:
			// Controller errors are cosmetic glitches, not daemon
			// failures; keep animating.
			d.logger.Warn(
				"controller reported error",
				"message", e.Message)
		case ledserial.LogEvent:
			d.logger.Info(
				"controller log",
				"message", e.Message)
		}
	}

	return ctx.Err()
}

func (d *internalDaemon) readInput(ctx context.Context) error {
	for ctx.Err() == nil {
		report, err := inputserial.ReadReport(d.inputPort)
		if err != nil {
			if errors.Is(err, io.EOF) {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			// A corrupt report desyncs the stream for a packet or two;
			// drop it and let the next one resync.
			d.logger.Debug("failed to read input report", "error", err)
			continue
		}
		d.sampler.Update(report)
	}
	return ctx.Err()
}

func (d *internalDaemon) writeCommand(c ledserial.Command) bool {
	if err := ledserial.WriteCommand(d.cmdW, c); err != nil {
		d.logger.Warn(
			"failed to write command",
			"command", c.Type(),
			"error", err)
		return false
	}
	return true
}
