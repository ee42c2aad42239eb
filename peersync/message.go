// Package peersync implements the broadcast protocol that keeps a group of
// independently-clocked sculptures converged on the same visual state.
//
// There is no coordinator and no reliable delivery: every device broadcasts
// its state stamped with its own "seconds since boot" clock, and receivers
// adopt whichever state claims the larger timestamp. A device that the user
// just touched rewinds its boot reference so its clock jumps ahead of the
// fleet, which makes it win the next round of comparisons.
package peersync

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Endianness defines the endianness of the wire format.
var Endianness = binary.LittleEndian

// MessageSize is the fixed wire size of a sync message. There is no version
// field; changing the layout is a breaking change across the whole fleet.
const MessageSize = 7

// Message is the state a device broadcasts to its peers.
type Message struct {
	// Timestamp is seconds since the sender's boot, per its logical clock.
	Timestamp uint32
	// Pattern is the active animation id.
	Pattern uint8
	// Brightness is the global LED intensity.
	Brightness uint8
	// Hue is the sender's hue offset on the color wheel.
	Hue uint8
}

// MarshalBinary encodes the message into its fixed 7-byte wire form.
func (m Message) MarshalBinary() ([]byte, error) {
	buf := make([]byte, MessageSize)
	Endianness.PutUint32(buf[0:4], m.Timestamp)
	buf[4] = m.Pattern
	buf[5] = m.Brightness
	buf[6] = m.Hue
	return buf, nil
}

// UnmarshalBinary decodes a fixed 7-byte wire message. Payloads of any other
// length are rejected rather than guessed at.
func (m *Message) UnmarshalBinary(data []byte) error {
	if len(data) != MessageSize {
		return errors.Errorf("sync message must be %d bytes, got %d", MessageSize, len(data))
	}
	m.Timestamp = Endianness.Uint32(data[0:4])
	m.Pattern = data[4]
	m.Brightness = data[5]
	m.Hue = data[6]
	return nil
}
