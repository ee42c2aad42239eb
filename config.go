package tiki

import (
	"encoding"
	"fmt"
	"io"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/samuelclay/tiki/internal/anim"
	"github.com/samuelclay/tiki/peersync"
)

// Config is the configuration for the tiki daemon.
type Config struct {
	// Device is the path to the LED controller's serial device.
	// This is usually /dev/ttyUSB0 or /dev/ttyACM0.
	Device string `toml:"device"`
	// Baud is the baud rate for the LED controller connection.
	Baud int `toml:"baud"`
	// Rate is the main loop tick rate in ticks per second.
	Rate int `toml:"rate"`
	// Brightness is the global LED intensity at boot.
	Brightness uint8 `toml:"brightness"`

	// Zones carves the strip into the face zones.
	Zones ZonesConfig `toml:"zones"`
	// Input configures the encoder-and-buttons peripheral.
	Input InputConfig `toml:"input"`
	// Sync configures the peer broadcast channel.
	Sync SyncConfig `toml:"sync"`
	// Blink configures the eye blink timing.
	Blink BlinkConfig `toml:"blink"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Device == "" {
		return errors.New("no LED controller device configured")
	}
	if c.Rate <= 0 {
		return errors.New("loop rate must be positive")
	}
	if err := c.Zones.validate(); err != nil {
		return err
	}
	if c.Blink.MaxDrop < 0 || c.Blink.MaxDrop >= 1 {
		return errors.New("blink max_drop must be in [0, 1)")
	}
	return nil
}

// ZonesConfig maps strip index ranges onto the face. Ranges are half-open
// [start, end).
type ZonesConfig struct {
	Teeth    [2]int `toml:"teeth"`
	LeftEye  [2]int `toml:"left_eye"`
	RightEye [2]int `toml:"right_eye"`
}

// NumLEDs returns the strip length implied by the zones.
func (z ZonesConfig) NumLEDs() int {
	var numLEDs int
	for _, r := range z.ranges() {
		if r[1] > numLEDs {
			numLEDs = r[1]
		}
	}
	return numLEDs
}

func (z ZonesConfig) ranges() [][2]int {
	return [][2]int{z.Teeth, z.LeftEye, z.RightEye}
}

func (z ZonesConfig) validate() error {
	ranges := z.ranges()
	for _, r := range ranges {
		if r[0] < 0 || r[1] <= r[0] {
			return fmt.Errorf("invalid zone range %v", r)
		}
	}

	// Check for overlapping zone ranges.
	for i, r1 := range ranges {
		for j, r2 := range ranges {
			if i == j {
				continue
			}
			if r1[0] >= r2[0] && r1[0] < r2[1] {
				return fmt.Errorf("zone range %v overlaps with %v", r1, r2)
			}
		}
	}

	return nil
}

// InputConfig is the configuration for the input peripheral. An empty
// device means no peripheral; the daemon then runs autonomously.
type InputConfig struct {
	// Device is the path to the peripheral's serial device.
	Device string `toml:"device"`
	// Baud is the baud rate for the peripheral connection.
	Baud int `toml:"baud"`
	// HoldThreshold is how long the pattern button must be held to put
	// the sculpture to sleep.
	HoldThreshold TOMLDuration `toml:"hold_threshold"`
	// AutoCycleInterval is how often patterns advance when no peripheral
	// is present.
	AutoCycleInterval TOMLDuration `toml:"auto_cycle_interval"`
	// OpenRetries bounds boot-time attempts to open the peripheral before
	// falling back to autonomous mode.
	OpenRetries int `toml:"open_retries"`
}

// SyncConfig is the configuration for the peer sync channel.
type SyncConfig struct {
	// Disabled turns peer sync off entirely.
	Disabled bool `toml:"disabled"`
	// Port is the UDP broadcast port shared by the fleet.
	Port int `toml:"port"`
	// BroadcastAddr overrides the destination broadcast address.
	BroadcastAddr string `toml:"broadcast_addr"`

	// Optional timing overrides; zero values keep protocol defaults.
	FastInterval   TOMLDuration `toml:"fast_interval"`
	NormalInterval TOMLDuration `toml:"normal_interval"`
	FastWindow     TOMLDuration `toml:"fast_window"`
	Promotion      TOMLDuration `toml:"promotion"`
}

func (c SyncConfig) protocolConfig() peersync.Config {
	cfg := peersync.DefaultConfig()
	if d := time.Duration(c.FastInterval); d > 0 {
		cfg.FastInterval = d
	}
	if d := time.Duration(c.NormalInterval); d > 0 {
		cfg.NormalInterval = d
	}
	if d := time.Duration(c.FastWindow); d > 0 {
		cfg.FastWindow = d
	}
	if d := time.Duration(c.Promotion); d > 0 {
		cfg.Promotion = d
	}
	return cfg
}

func (c SyncConfig) udpConfig() peersync.UDPConfig {
	cfg := peersync.DefaultUDPConfig()
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	if c.BroadcastAddr != "" {
		cfg.BroadcastAddr = c.BroadcastAddr
	}
	return cfg
}

// BlinkConfig is the configuration for the eye blink timing. Zero values
// keep the stock timing.
type BlinkConfig struct {
	CloseDuration TOMLDuration `toml:"close_duration"`
	HoldDuration  TOMLDuration `toml:"hold_duration"`
	OpenDuration  TOMLDuration `toml:"open_duration"`
	MaxDrop       float64      `toml:"max_drop"`
	MinInterval   TOMLDuration `toml:"min_interval"`
	MaxInterval   TOMLDuration `toml:"max_interval"`
}

func (c BlinkConfig) animConfig() anim.BlinkConfig {
	cfg := anim.DefaultBlinkConfig()
	if d := time.Duration(c.CloseDuration); d > 0 {
		cfg.CloseDuration = d
	}
	if d := time.Duration(c.HoldDuration); d > 0 {
		cfg.HoldDuration = d
	}
	if d := time.Duration(c.OpenDuration); d > 0 {
		cfg.OpenDuration = d
	}
	if c.MaxDrop > 0 {
		cfg.MaxDrop = c.MaxDrop
	}
	if d := time.Duration(c.MinInterval); d > 0 {
		cfg.MinInterval = d
	}
	if d := time.Duration(c.MaxInterval); d > 0 {
		cfg.MaxInterval = d
	}
	return cfg
}

// TOMLDuration is a duration that can be parsed from TOML.
type TOMLDuration time.Duration

var (
	_ encoding.TextUnmarshaler = (*TOMLDuration)(nil)
	_ encoding.TextMarshaler   = (*TOMLDuration)(nil)
)

func (d *TOMLDuration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = TOMLDuration(duration)
	return nil
}

func (d TOMLDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ParseConfig parses a configuration from a reader and fills in defaults.
func ParseConfig(r io.Reader) (*Config, error) {
	var config Config
	if err := toml.NewDecoder(r).Decode(&config); err != nil {
		return nil, err
	}

	if config.Baud == 0 {
		config.Baud = 115200
	}
	if config.Rate == 0 {
		config.Rate = 100
	}
	if config.Brightness == 0 {
		config.Brightness = 180
	}
	if config.Input.Baud == 0 {
		config.Input.Baud = 115200
	}
	if config.Input.HoldThreshold == 0 {
		config.Input.HoldThreshold = TOMLDuration(2 * time.Second)
	}
	if config.Input.AutoCycleInterval == 0 {
		config.Input.AutoCycleInterval = TOMLDuration(20 * time.Second)
	}
	if config.Input.OpenRetries == 0 {
		config.Input.OpenRetries = 3
	}

	return &config, nil
}
