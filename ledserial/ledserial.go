// Package ledserial implements the serial protocol spoken to the LED strip
// controller. Commands flow host → controller, events flow back. Every
// packet is a type byte, a fixed or length-prefixed body, and a CRC32
// trailer.
package ledserial

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Endianness defines the endianness of the protocol.
var Endianness = binary.LittleEndian

// CommandType is a type of host → controller packet.
type CommandType uint8

const (
	TypeInitializeCommand CommandType = iota
	TypeClearCommand
	TypeSetBrightnessCommand
	TypeSetCommand
)

// String returns a string representation of the command type.
func (t CommandType) String() string {
	switch t {
	case TypeInitializeCommand:
		return "initialize"
	case TypeClearCommand:
		return "clear"
	case TypeSetBrightnessCommand:
		return "set-brightness"
	case TypeSetCommand:
		return "set"
	default:
		return fmt.Sprintf("CommandType(%d)", uint8(t))
	}
}

// Command is a packet sent to the controller.
type Command interface {
	// Type returns the type of command.
	Type() CommandType
}

// InitializeCommand tells the controller how many LEDs to drive.
type InitializeCommand struct {
	NumLEDs uint16
}

// ClearCommand blanks the whole strip.
type ClearCommand struct{}

// SetBrightnessCommand sets the controller's global intensity scalar.
type SetBrightnessCommand struct {
	Level uint8
}

// SetCommand pushes a full frame of pixel data.
type SetCommand struct {
	Pix []uint8
}

func (c InitializeCommand) Type() CommandType    { return TypeInitializeCommand }
func (c ClearCommand) Type() CommandType         { return TypeClearCommand }
func (c SetBrightnessCommand) Type() CommandType { return TypeSetBrightnessCommand }
func (c SetCommand) Type() CommandType           { return TypeSetCommand }

// EventType is a type of controller → host packet.
type EventType uint8

const (
	TypeAckEvent EventType = iota
	TypeErrorEvent
	TypeLogEvent
)

// String returns a string representation of the event type.
func (t EventType) String() string {
	switch t {
	case TypeAckEvent:
		return "ack"
	case TypeErrorEvent:
		return "error"
	case TypeLogEvent:
		return "log"
	default:
		return fmt.Sprintf("EventType(%d)", uint8(t))
	}
}

// Event is a packet received from the controller.
type Event interface {
	// Type returns the type of event.
	Type() EventType
}

// AckEvent acknowledges the most recent command.
type AckEvent struct {
	AckedCommand CommandType
}

// ErrorEvent reports a recoverable controller error.
type ErrorEvent struct {
	Message string
}

// LogEvent carries a controller log line.
type LogEvent struct {
	Message string
}

func (e AckEvent) Type() EventType   { return TypeAckEvent }
func (e ErrorEvent) Type() EventType { return TypeErrorEvent }
func (e LogEvent) Type() EventType   { return TypeLogEvent }

// WriteCommand writes a command packet to the given writer.
func WriteCommand(w io.Writer, c Command) error {
	hash := crc32.NewIEEE()
	w = io.MultiWriter(w, hash)

	if err := binary.Write(w, Endianness, c.Type()); err != nil {
		return fmt.Errorf("failed to write command type: %w", err)
	}

	switch c := c.(type) {
	case InitializeCommand:
		if err := binary.Write(w, Endianness, c); err != nil {
			return fmt.Errorf("failed to write initialize command: %w", err)
		}
	case ClearCommand:
		// Type byte only.
	case SetBrightnessCommand:
		if err := binary.Write(w, Endianness, c); err != nil {
			return fmt.Errorf("failed to write brightness command: %w", err)
		}
	case SetCommand:
		if _, err := w.Write(c.Pix); err != nil {
			return fmt.Errorf("failed to write pixel data: %w", err)
		}
	default:
		return fmt.Errorf("unknown command type: %T", c)
	}

	if err := binary.Write(w, Endianness, hash.Sum32()); err != nil {
		return fmt.Errorf("failed to write command checksum: %w", err)
	}

	return nil
}

// ReadContext carries the strip state a reader needs to size fixed-length
// bodies.
type ReadContext struct {
	// NumLEDs is the number of LEDs in the strip.
	NumLEDs uint16
}

// ReadCommand reads a command packet from the given reader. Only the
// controller side reads commands in production; the host exercises it in
// tests.
func ReadCommand(r io.Reader, context ReadContext) (Command, error) {
	hash := crc32.NewIEEE()
	r = io.TeeReader(r, hash)

	var command Command
	var ctypeBuf [1]byte
	if _, err := io.ReadFull(r, ctypeBuf[:]); err != nil {
		return nil, fmt.Errorf("failed to read command type: %w", err)
	}

	switch ctype := CommandType(ctypeBuf[0]); ctype {
	case TypeInitializeCommand:
		var c InitializeCommand
		if err := binary.Read(r, Endianness, &c); err != nil {
			return nil, fmt.Errorf("failed to read number of LEDs: %w", err)
		}
		command = c

	case TypeClearCommand:
		command = ClearCommand{}

	case TypeSetBrightnessCommand:
		var c SetBrightnessCommand
		if err := binary.Read(r, Endianness, &c); err != nil {
			return nil, fmt.Errorf("failed to read brightness level: %w", err)
		}
		command = c

	case TypeSetCommand:
		var c SetCommand
		c.Pix = make([]uint8, 3*context.NumLEDs)
		if _, err := io.ReadFull(r, c.Pix); err != nil {
			return nil, fmt.Errorf("failed to read pixel data: %w", err)
		}
		command = c

	default:
		return nil, fmt.Errorf("unknown command type: %s", ctype)
	}

	sum := hash.Sum32()

	var checksum uint32
	if err := binary.Read(r, Endianness, &checksum); err != nil {
		return nil, fmt.Errorf("failed to read command checksum: %w", err)
	}
	if checksum != sum {
		return nil, fmt.Errorf("command checksum mismatch")
	}

	return command, nil
}

// WriteEvent writes an event packet to the given writer. Only the controller
// side writes events in production; the host exercises it in tests.
func WriteEvent(w io.Writer, e Event) error {
	hash := crc32.NewIEEE()
	w = io.MultiWriter(w, hash)

	if err := binary.Write(w, Endianness, e.Type()); err != nil {
		return fmt.Errorf("failed to write event type: %w", err)
	}

	switch e := e.(type) {
	case AckEvent:
		if err := binary.Write(w, Endianness, e); err != nil {
			return fmt.Errorf("failed to write ack event: %w", err)
		}
	case ErrorEvent:
		if err := writeString(w, e.Message); err != nil {
			return fmt.Errorf("failed to write error event: %w", err)
		}
	case LogEvent:
		if err := writeString(w, e.Message); err != nil {
			return fmt.Errorf("failed to write log event: %w", err)
		}
	default:
		return fmt.Errorf("unknown event type: %T", e)
	}

	if err := binary.Write(w, Endianness, hash.Sum32()); err != nil {
		return fmt.Errorf("failed to write event checksum: %w", err)
	}

	return nil
}

// ReadEvent reads an event packet from the given reader.
func ReadEvent(r io.Reader) (Event, error) {
	hash := crc32.NewIEEE()
	r = io.TeeReader(r, hash)

	var event Event
	var etypeBuf [1]byte
	if _, err := io.ReadFull(r, etypeBuf[:]); err != nil {
		return nil, fmt.Errorf("failed to read event type: %w", err)
	}

	switch etype := EventType(etypeBuf[0]); etype {
	case TypeAckEvent:
		var e AckEvent
		if err := binary.Read(r, Endianness, &e); err != nil {
			return nil, fmt.Errorf("failed to read ack event: %w", err)
		}
		event = e

	case TypeErrorEvent:
		msg, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read error message: %w", err)
		}
		event = ErrorEvent{Message: msg}

	case TypeLogEvent:
		msg, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read log message: %w", err)
		}
		event = LogEvent{Message: msg}

	default:
		return nil, fmt.Errorf("unknown event type: %s", etype)
	}

	sum := hash.Sum32()

	var checksum uint32
	if err := binary.Read(r, Endianness, &checksum); err != nil {
		return nil, fmt.Errorf("failed to read event checksum: %w", err)
	}
	if checksum != sum {
		return nil, fmt.Errorf("event checksum mismatch")
	}

	return event, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, Endianness, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, Endianness, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
