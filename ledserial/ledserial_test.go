package ledserial

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRoundtrip(t *testing.T) {
	commands := []Command{
		InitializeCommand{NumLEDs: 42},
		ClearCommand{},
		SetBrightnessCommand{Level: 180},
		SetCommand{Pix: bytes.Repeat([]byte{1, 2, 3}, 42)},
	}

	for _, c := range commands {
		var buf bytes.Buffer
		require.NoError(t, WriteCommand(&buf, c), "write %s", c.Type())

		got, err := ReadCommand(&buf, ReadContext{NumLEDs: 42})
		require.NoError(t, err, "read %s", c.Type())
		assert.Equal(t, c, got)
	}
}

func TestEventRoundtrip(t *testing.T) {
	events := []Event{
		AckEvent{AckedCommand: TypeSetCommand},
		ErrorEvent{Message: "strip voltage sag"},
		LogEvent{Message: "boot ok"},
	}

	for _, e := range events {
		var buf bytes.Buffer
		require.NoError(t, WriteEvent(&buf, e), "write %s", e.Type())

		got, err := ReadEvent(&buf)
		require.NoError(t, err, "read %s", e.Type())
		assert.Equal(t, e, got)
	}
}

func TestCommandChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCommand(&buf, SetBrightnessCommand{Level: 99}))

	raw := buf.Bytes()
	raw[1] ^= 0xFF // corrupt the body, keep the trailer

	_, err := ReadCommand(bytes.NewReader(raw), ReadContext{})
	assert.ErrorContains(t, err, "checksum")
}

func TestEventChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEvent(&buf, LogEvent{Message: "hello"}))

	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF // corrupt the trailer

	_, err := ReadEvent(bytes.NewReader(raw))
	assert.ErrorContains(t, err, "checksum")
}

func TestReadCommandUnknownType(t *testing.T) {
	_, err := ReadCommand(bytes.NewReader([]byte{0xEE, 0, 0, 0, 0}), ReadContext{})
	assert.ErrorContains(t, err, "unknown command type")
}
