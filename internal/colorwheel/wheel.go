// Package colorwheel maps 8-bit hue positions onto RGB colors and provides
// distance math on the circular hue space.
package colorwheel

// RGB is a single LED color. The channel order matches the wire order the
// strip controller expects.
type RGB [3]uint8

// Scale returns the color with every channel multiplied by f, clamped to
// [0, 1]. Used for blink fades and breathing intensity.
func (c RGB) Scale(f float64) RGB {
	if f <= 0 {
		return RGB{}
	}
	if f >= 1 {
		return c
	}
	return RGB{
		uint8(float64(c[0]) * f),
		uint8(float64(c[1]) * f),
		uint8(float64(c[2]) * f),
	}
}

// Wheel converts a position on the 256-step color wheel to an RGB color.
// The wheel runs red → green → blue → red in three 85-step segments.
func Wheel(pos uint8) RGB {
	switch {
	case pos < 85:
		return RGB{255 - pos*3, pos * 3, 0}
	case pos < 170:
		pos -= 85
		return RGB{0, 255 - pos*3, pos * 3}
	default:
		pos -= 170
		return RGB{pos * 3, 0, 255 - pos*3}
	}
}

// Distance returns the circular distance between two wheel positions.
// It is symmetric and never exceeds 128.
func Distance(a, b uint8) uint8 {
	d := a - b
	if b > a {
		d = b - a
	}
	if d > 128 {
		return uint8(256 - int(d))
	}
	return d
}
