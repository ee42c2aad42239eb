package pattern

import (
	"math"
	"math/rand"
	"time"

	"github.com/samuelclay/tiki/internal/colorwheel"
)

// Default hues used when no custom hue is set. Wheel positions, not RGB.
const (
	glowDefaultHue    = 20  // warm amber
	breatheDefaultHue = 170 // deep blue
	chaseDefaultHue   = 85  // green
	sparkleDefaultHue = 140 // teal
)

// glow paints the whole mouth a single solid hue.
type glow struct{}

func newGlow() Renderer { return &glow{} }

func (g *glow) Name() string            { return "glow" }
func (g *glow) Interval() time.Duration { return 50 * time.Millisecond }

func (g *glow) Render(f *Frame) {
	hue := f.Palette.BaseHue(glowDefaultHue)
	c := colorwheel.Wheel(hue)
	for i := range f.Teeth {
		f.Teeth[i] = c
	}
	f.PaintEyes(hue)
}

// rainbow sweeps the full wheel across the teeth, rotating every frame.
// The palette hue shifts the whole sweep rather than replacing it.
type rainbow struct {
	offset uint8
}

func newRainbow() Renderer { return &rainbow{} }

func (r *rainbow) Name() string            { return "rainbow" }
func (r *rainbow) Interval() time.Duration { return 30 * time.Millisecond }

func (r *rainbow) Render(f *Frame) {
	base := f.Palette.BaseHue(0)
	n := len(f.Teeth)
	for i := range f.Teeth {
		pos := base + r.offset + uint8(i*256/max(n, 1))
		f.Teeth[i] = colorwheel.Wheel(pos)
	}
	r.offset++
	f.PaintEyes(base + r.offset)
}

// breathe swells the mouth brightness on a sine, like slow breathing. The
// intensity floor keeps the face from going fully dark between breaths.
type breathe struct {
	phase float64
}

func newBreathe() Renderer { return &breathe{} }

func (b *breathe) Name() string            { return "breathe" }
func (b *breathe) Interval() time.Duration { return 30 * time.Millisecond }

func (b *breathe) Render(f *Frame) {
	hue := f.Palette.BaseHue(breatheDefaultHue)
	intensity := 0.25 + 0.75*(0.5+0.5*math.Sin(b.phase))
	b.phase += 0.06

	c := colorwheel.Wheel(hue).Scale(intensity)
	for i := range f.Teeth {
		f.Teeth[i] = c
	}
	f.PaintEyes(hue)
}

// chase runs a short bright tail across the teeth over a dim background.
type chase struct {
	pos int
}

const chaseTail = 3

func newChase() Renderer { return &chase{} }

func (c *chase) Name() string            { return "chase" }
func (c *chase) Interval() time.Duration { return 60 * time.Millisecond }

func (c *chase) Render(f *Frame) {
	hue := f.Palette.BaseHue(chaseDefaultHue)
	n := len(f.Teeth)
	if n == 0 {
		f.PaintEyes(hue)
		return
	}

	bright := colorwheel.Wheel(hue)
	dim := bright.Scale(0.08)
	for i := range f.Teeth {
		f.Teeth[i] = dim
	}
	for t := 0; t < chaseTail; t++ {
		i := (c.pos - t + n) % n
		f.Teeth[i] = bright.Scale(1.0 - float64(t)/chaseTail)
	}
	c.pos = (c.pos + 1) % n

	f.PaintEyes(hue)
}

// sparkle twinkles random teeth at full brightness while the rest decay.
type sparkle struct {
	rng    *rand.Rand
	levels []float64
}

func newSparkle() Renderer {
	return &sparkle{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *sparkle) Name() string            { return "sparkle" }
func (s *sparkle) Interval() time.Duration { return 40 * time.Millisecond }

func (s *sparkle) Render(f *Frame) {
	hue := f.Palette.BaseHue(sparkleDefaultHue)
	n := len(f.Teeth)
	if len(s.levels) != n {
		s.levels = make([]float64, n)
	}

	if n > 0 && s.rng.Intn(3) == 0 {
		s.levels[s.rng.Intn(n)] = 1.0
	}

	base := colorwheel.Wheel(hue)
	for i := range f.Teeth {
		f.Teeth[i] = base.Scale(s.levels[i])
		s.levels[i] *= 0.90
	}

	f.PaintEyes(hue)
}
