// Package pattern renders the tiki face. Each renderer owns its frame pace
// and paints the teeth zone; eye pixels always come from the palette hue
// scaled by the blink factor, so a blink reads the same no matter which
// pattern is active.
package pattern

import (
	"time"

	"github.com/samuelclay/tiki/internal/colorwheel"
)

// Pattern ids. These are the values carried in the sync message's pattern
// byte, so their order is wire format.
const (
	IDGlow uint8 = iota
	IDRainbow
	IDBreathe
	IDChase
	IDSparkle

	// Count is the number of patterns.
	Count
)

// Palette selects the color source for a frame: the hue the user dialed in,
// or the pattern's own default when no custom hue is set.
type Palette struct {
	Hue          uint8
	UseCustomHue bool
}

// BaseHue resolves the palette against a pattern's default hue.
func (p Palette) BaseHue(def uint8) uint8 {
	if p.UseCustomHue {
		return p.Hue
	}
	return def
}

// Frame is one render pass over the face. The zone slices are views into
// the daemon's pixel buffer.
type Frame struct {
	Teeth    []colorwheel.RGB
	LeftEye  []colorwheel.RGB
	RightEye []colorwheel.RGB

	Palette     Palette
	BlinkFactor float64
	Now         time.Time
}

// PaintEyes fills both eye zones with the given hue scaled by the blink
// factor. Blink never touches the teeth.
func (f *Frame) PaintEyes(hue uint8) {
	c := colorwheel.Wheel(hue).Scale(f.BlinkFactor)
	for i := range f.LeftEye {
		f.LeftEye[i] = c
	}
	for i := range f.RightEye {
		f.RightEye[i] = c
	}
}

// Renderer draws one animation pattern.
type Renderer interface {
	// Name returns the pattern's human-readable name.
	Name() string
	// Interval is the pattern's inter-frame delay.
	Interval() time.Duration
	// Render paints one frame.
	Render(f *Frame)
}

// New returns the renderer for a pattern id. Unknown ids fall back to Glow
// so a garbled sync message can never leave the face blank.
func New(id uint8) Renderer {
	switch id {
	case IDRainbow:
		return newRainbow()
	case IDBreathe:
		return newBreathe()
	case IDChase:
		return newChase()
	case IDSparkle:
		return newSparkle()
	default:
		return newGlow()
	}
}

// All returns one renderer per pattern id, indexed by id.
func All() []Renderer {
	rs := make([]Renderer, Count)
	for id := uint8(0); id < Count; id++ {
		rs[id] = New(id)
	}
	return rs
}
