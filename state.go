package tiki

import (
	"github.com/samuelclay/tiki/internal/anim"
	"github.com/samuelclay/tiki/internal/pattern"
)

// DeviceState is the device-wide visual state: the fields that patterns
// read, the input peripheral mutates, and the sync protocol broadcasts.
// There is exactly one instance, owned by the daemon, and every mutation
// happens under the daemon's state mutex because the sync receive callback
// writes it concurrently with the main loop.
type DeviceState struct {
	// Pattern is the active animation id.
	Pattern uint8
	// Brightness is the global LED intensity scalar.
	Brightness uint8
	// Hue chases its target around the color wheel. Hue.Current is the
	// value patterns render with and the value broadcast to peers.
	Hue anim.Transition
	// UseCustomHue makes patterns color from Hue instead of their own
	// defaults. Set by the encoder and by adopted peer state.
	UseCustomHue bool
}

// NewDeviceState returns the boot state.
func NewDeviceState(brightness uint8) DeviceState {
	return DeviceState{
		Pattern:    pattern.IDGlow,
		Brightness: brightness,
	}
}
