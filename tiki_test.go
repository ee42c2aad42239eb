package tiki

import (
	"bytes"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelclay/tiki/inputserial"
	"github.com/samuelclay/tiki/internal/anim"
	"github.com/samuelclay/tiki/internal/colorwheel"
	"github.com/samuelclay/tiki/internal/pattern"
	"github.com/samuelclay/tiki/ledserial"
	"github.com/samuelclay/tiki/peersync"
)

// pipeTransport records every broadcast and, when wired, delivers it straight
// into a peer's receive callback.
type pipeTransport struct {
	deliver func([]byte)
	sent    []peersync.Message
}

func (p *pipeTransport) Send(raw []byte) error {
	var msg peersync.Message
	if err := msg.UnmarshalBinary(raw); err != nil {
		return err
	}
	p.sent = append(p.sent, msg)
	if p.deliver != nil {
		p.deliver(append([]byte(nil), raw...))
	}
	return nil
}

func (p *pipeTransport) Reinit() error { return nil }

// commandSink records every packet the daemon would write to the LED
// controller, for decoding after the fact.
type commandSink struct {
	buf bytes.Buffer
}

func (s *commandSink) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func (s *commandSink) drain(t *testing.T, numLEDs uint16) []ledserial.Command {
	t.Helper()
	var cmds []ledserial.Command
	for s.buf.Len() > 0 {
		c, err := ledserial.ReadCommand(&s.buf, ledserial.ReadContext{NumLEDs: numLEDs})
		require.NoError(t, err)
		cmds = append(cmds, c)
	}
	return cmds
}

// newTestDaemon builds an internalDaemon around an in-memory transport,
// skipping the serial ports entirely.
func newTestDaemon(tr peersync.Transport, now time.Time) *internalDaemon {
	cfg := &Config{
		Device:     "/dev/null",
		Baud:       115200,
		Rate:       100,
		Brightness: 180,
		Zones: ZonesConfig{
			Teeth:    [2]int{0, 12},
			LeftEye:  [2]int{12, 14},
			RightEye: [2]int{14, 16},
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	d := &internalDaemon{Daemon: &Daemon{cfg: cfg, logger: logger}}
	d.cmdW = io.Discard
	d.state = NewDeviceState(cfg.Brightness)
	d.blink = anim.NewBlink(anim.DefaultBlinkConfig(), logger)
	d.blink.Reset(now)
	d.sleep = NewSleepController(2 * time.Second)
	d.renderers = pattern.All()
	d.clocks = make([]anim.Clock, len(d.renderers))
	for i, r := range d.renderers {
		d.clocks[i] = anim.NewClock(r.Interval())
	}
	d.face = NewFace(cfg.Zones)
	d.rng = rand.New(rand.NewSource(1))
	d.proto = peersync.New(peersync.DefaultConfig(), tr, logger, now)
	return d
}

func (d *internalDaemon) snapshot() (uint8, uint8, uint8) {
	return d.state.Pattern, d.state.Brightness, d.state.Hue.Current
}

func mustPayload(t *testing.T, msg peersync.Message) []byte {
	t.Helper()
	raw, err := msg.MarshalBinary()
	require.NoError(t, err)
	return raw
}

// Walking the pattern button on one sculpture must drag the other one along:
// the touched device jumps its clock, skips one send window, broadcasts on
// the next, and the peer adopts and enters fast mode itself.
func TestPeersConvergeOnLocalChange(t *testing.T) {
	t0 := time.Now()
	trA := &pipeTransport{}
	trB := &pipeTransport{}
	a := newTestDaemon(trA, t0)
	b := newTestDaemon(trB, t0)
	trA.deliver = b.handleSyncPayload
	trB.deliver = a.handleSyncPayload

	a.advancePattern(t0)
	require.NotEqual(t, a.state.Pattern, b.state.Pattern)
	require.True(t, a.proto.Pending())

	// The jump's first eligible window is deliberately skipped.
	a.proto.Tick(t0.Add(100*time.Millisecond), a.snapshot)
	assert.Empty(t, trA.sent)

	a.proto.Tick(t0.Add(200*time.Millisecond), a.snapshot)
	require.Len(t, trA.sent, 1)
	assert.Equal(t, a.state.Pattern, trA.sent[0].Pattern)

	assert.Equal(t, a.state.Pattern, b.state.Pattern, "peer adopted the pattern")
	assert.True(t, b.proto.FastMode(time.Now()), "adoption triggers fast mode")
	assert.True(t, b.proto.Pending(), "peer skips its next window too")
}

func TestStaleSyncMessageIgnored(t *testing.T) {
	// Booted 10s ago, so the local logical clock reads about 10.
	t0 := time.Now().Add(-10 * time.Second)
	d := newTestDaemon(&pipeTransport{}, t0)

	d.handleSyncPayload(mustPayload(t, peersync.Message{
		Timestamp:  5,
		Pattern:    pattern.IDChase,
		Brightness: 42,
		Hue:        9,
	}))

	assert.Equal(t, pattern.IDGlow, d.state.Pattern)
	assert.Equal(t, uint8(180), d.state.Brightness)
	assert.False(t, d.state.UseCustomHue)
}

func TestFresherSyncMessageAdopted(t *testing.T) {
	t0 := time.Now().Add(-10 * time.Second)
	d := newTestDaemon(&pipeTransport{}, t0)

	d.handleSyncPayload(mustPayload(t, peersync.Message{
		Timestamp:  60,
		Pattern:    pattern.IDChase,
		Brightness: 90,
		Hue:        200,
	}))

	assert.Equal(t, pattern.IDChase, d.state.Pattern)
	assert.Equal(t, uint8(90), d.state.Brightness)
	assert.True(t, d.brightnessDirty)
	assert.Equal(t, uint8(200), d.state.Hue.Current, "hue snaps, no transition")
	assert.Equal(t, uint8(200), d.state.Hue.Target)
	assert.True(t, d.state.UseCustomHue)
}

func TestSyncMessageWithUnknownPattern(t *testing.T) {
	t0 := time.Now().Add(-10 * time.Second)
	d := newTestDaemon(&pipeTransport{}, t0)

	d.handleSyncPayload(mustPayload(t, peersync.Message{
		Timestamp:  60,
		Pattern:    200,
		Brightness: 90,
		Hue:        200,
	}))

	// The clock and scalars still win; only the bogus pattern id is dropped.
	assert.Equal(t, pattern.IDGlow, d.state.Pattern)
	assert.Equal(t, uint8(90), d.state.Brightness)
}

func TestSleepSuspendsBroadcastAndControls(t *testing.T) {
	t0 := time.Now()
	tr := &pipeTransport{}
	d := newTestDaemon(tr, t0)

	hold := inputserial.Report{Buttons: 1 << inputserial.ButtonPattern}
	d.handleInput(hold, t0)
	d.handleInput(hold, t0.Add(2100*time.Millisecond))
	require.True(t, d.sleep.Asleep())

	// An otherwise-eligible aligned window produces nothing while asleep.
	d.proto.Tick(t0.Add(3*time.Second), d.snapshot)
	assert.Empty(t, tr.sent)

	// Encoder and brightness input are dead while asleep.
	d.handleInput(inputserial.Report{Encoder: 10}, t0.Add(4*time.Second))
	d.handleInput(inputserial.Report{
		Buttons: 1 << inputserial.ButtonBrightness,
		Encoder: 10,
	}, t0.Add(4100*time.Millisecond))
	assert.Equal(t, uint8(180), d.state.Brightness)
	assert.False(t, d.state.UseCustomHue)
}

func TestWakeRandomizesAndRebroadcasts(t *testing.T) {
	t0 := time.Now()
	tr := &pipeTransport{}
	d := newTestDaemon(tr, t0)

	hold := inputserial.Report{Buttons: 1 << inputserial.ButtonPattern}
	d.handleInput(hold, t0)
	d.handleInput(hold, t0.Add(2100*time.Millisecond))
	d.handleInput(inputserial.Report{}, t0.Add(3*time.Second))
	require.True(t, d.sleep.Asleep())

	d.handleInput(hold, t0.Add(5*time.Second))
	assert.False(t, d.sleep.Asleep())
	assert.True(t, d.state.UseCustomHue, "wake picks a fresh hue")
	assert.True(t, d.brightnessDirty, "brightness is re-sent after the blank")
	assert.True(t, d.proto.Pending(), "wake claims the fleet's attention")

	// Pending swallows one fast window, then the wake state goes out.
	d.proto.Tick(t0.Add(5100*time.Millisecond), d.snapshot)
	assert.Empty(t, tr.sent)
	d.proto.Tick(t0.Add(5200*time.Millisecond), d.snapshot)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, d.state.Pattern, tr.sent[0].Pattern)
	assert.Equal(t, d.state.Hue.Current, tr.sent[0].Hue)
}

func TestTickBlanksOnceWhileAsleep(t *testing.T) {
	t0 := time.Now()
	d := newTestDaemon(&pipeTransport{}, t0)
	sink := &commandSink{}
	d.cmdW = sink

	numLEDs := uint16(d.cfg.Zones.NumLEDs())
	d.sampler.Update(inputserial.Report{Buttons: 1 << inputserial.ButtonPattern})

	// Awake: the pattern renders and a frame goes to the strip.
	d.tick(t0)
	cmds := sink.drain(t, numLEDs)
	require.NotEmpty(t, cmds)
	for _, c := range cmds {
		assert.IsType(t, ledserial.SetCommand{}, c)
	}

	// Crossing the hold threshold sleeps; the strip is blanked exactly once.
	d.tick(t0.Add(2100 * time.Millisecond))
	require.True(t, d.sleep.Asleep())
	cmds = sink.drain(t, numLEDs)
	require.Len(t, cmds, 1)
	assert.IsType(t, ledserial.ClearCommand{}, cmds[0])
	assert.Equal(t, colorwheel.RGB{}, d.face.Strip[0], "local buffer blanked with the strip")

	// Asleep: further ticks write nothing at all.
	for dt := 2200; dt <= 3000; dt += 100 {
		d.tick(t0.Add(time.Duration(dt) * time.Millisecond))
	}
	assert.Zero(t, sink.buf.Len())
}

func TestTickHoldsHueWhilePending(t *testing.T) {
	t0 := time.Now()
	d := newTestDaemon(&pipeTransport{}, t0)
	d.state.Hue.Target = 100
	d.state.UseCustomHue = true

	d.proto.Promote(t0)
	require.True(t, d.proto.Pending())

	// The transition is frozen until the pending broadcast window passes.
	d.tick(t0)
	assert.Equal(t, uint8(0), d.state.Hue.Current)
	require.False(t, d.proto.Pending(), "tick consumed the pending window")

	d.tick(t0.Add(50 * time.Millisecond))
	assert.Equal(t, uint8(3), d.state.Hue.Current, "stepping resumes once clear")
}

func TestEncoderAdjustsHueTarget(t *testing.T) {
	t0 := time.Now()
	d := newTestDaemon(&pipeTransport{}, t0)

	// The first report only establishes the encoder baseline.
	d.handleInput(inputserial.Report{Encoder: 100}, t0)
	assert.False(t, d.state.UseCustomHue)

	d.handleInput(inputserial.Report{Encoder: 102}, t0.Add(50*time.Millisecond))
	assert.Equal(t, uint8(8), d.state.Hue.Target, "four hue steps per detent")
	assert.True(t, d.state.UseCustomHue)
	assert.True(t, d.proto.Pending(), "hue twiddling promotes the clock")
}

func TestBrightnessButtonWalksTheLadder(t *testing.T) {
	t0 := time.Now()
	d := newTestDaemon(&pipeTransport{}, t0)
	require.Equal(t, uint8(180), d.state.Brightness)

	press := inputserial.Report{Buttons: 1 << inputserial.ButtonBrightness}

	d.handleInput(press, t0)
	assert.Equal(t, uint8(120), d.state.Brightness)
	assert.True(t, d.brightnessDirty)

	// Holding is not repeated stepping; only press edges count.
	d.handleInput(press, t0.Add(50*time.Millisecond))
	assert.Equal(t, uint8(120), d.state.Brightness)

	d.handleInput(inputserial.Report{}, t0.Add(100*time.Millisecond))
	d.handleInput(press, t0.Add(150*time.Millisecond))
	assert.Equal(t, uint8(70), d.state.Brightness)
}

func TestAutoCycler(t *testing.T) {
	t0 := time.Unix(100, 0)
	a := NewAutoCycler(20*time.Second, t0)

	assert.False(t, a.Tick(t0.Add(19*time.Second)))
	assert.True(t, a.Tick(t0.Add(20*time.Second)))
	assert.False(t, a.Tick(t0.Add(21*time.Second)), "interval restarts after firing")
	assert.True(t, a.Tick(t0.Add(40*time.Second)))
}
