package tiki

import (
	"unsafe"

	"github.com/samuelclay/tiki/internal/colorwheel"
)

// LEDs describes a strip of LEDs. It is a preallocated slice of RGB colors.
type LEDs []colorwheel.RGB

// NewLEDs creates a new strip of LEDs. Colors are initialized to black
// (off).
func NewLEDs(numLEDs int) LEDs {
	return make(LEDs, numLEDs)
}

// AsPixels returns the LED strip as a slice of uint8 values. Each LED is
// represented by three values, one for each color channel.
func (l LEDs) AsPixels() []uint8 {
	if len(l) == 0 {
		return nil
	}
	return unsafe.Slice((*uint8)(unsafe.Pointer(&l[0])), 3*len(l))
}

// Set sets the color of the LED at the given index.
func (l LEDs) Set(i int, c colorwheel.RGB) {
	l[i] = c
}

// Clear turns every LED in the strip off.
func (l LEDs) Clear() {
	for i := range l {
		l[i] = colorwheel.RGB{}
	}
}

// Face carves the strip into the sculpture's zones. Each zone is a view
// into the same backing buffer, so writing a zone writes the strip.
type Face struct {
	Strip    LEDs
	Teeth    LEDs
	LeftEye  LEDs
	RightEye LEDs
}

// NewFace allocates a strip and slices it into the configured zones.
// Assumes the zone ranges were already validated.
func NewFace(zones ZonesConfig) Face {
	strip := NewLEDs(zones.NumLEDs())
	return Face{
		Strip:    strip,
		Teeth:    strip[zones.Teeth[0]:zones.Teeth[1]],
		LeftEye:  strip[zones.LeftEye[0]:zones.LeftEye[1]],
		RightEye: strip[zones.RightEye[0]:zones.RightEye[1]],
	}
}
