// Package inputserial implements the serial protocol spoken by the input
// peripheral: a small board with a rotary encoder and two buttons that
// streams its state to the host. The host never writes to the board; it
// only parses the report stream and keeps the freshest sample around for
// the main loop to poll.
package inputserial

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"sync"
)

// Endianness defines the endianness of the protocol.
var Endianness = binary.LittleEndian

// Button ids on the peripheral.
const (
	// ButtonPattern cycles patterns on press and toggles sleep on a long
	// hold.
	ButtonPattern = 0
	// ButtonBrightness steps the brightness ladder.
	ButtonBrightness = 1
)

const reportType uint8 = 0

// Report is one sample of the peripheral's state. The board sends a report
// whenever anything changes and at a slow keepalive rate otherwise.
type Report struct {
	// Buttons is a bitmask with a set bit per held button. The board reads
	// the switches active-low and folds that in, so a set bit here always
	// means "pressed".
	Buttons uint8
	// Encoder is the cumulative detent count. The host computes deltas.
	Encoder int32
}

// Pressed reports whether the given button is held in this sample.
func (r Report) Pressed(id int) bool {
	return r.Buttons&(1<<uint(id)) != 0
}

// WriteReport writes a report packet. The board side owns this in
// production; the host exercises it in tests and simulators.
func WriteReport(w io.Writer, r Report) error {
	hash := crc32.NewIEEE()
	w = io.MultiWriter(w, hash)

	if err := binary.Write(w, Endianness, reportType); err != nil {
		return fmt.Errorf("failed to write report type: %w", err)
	}
	if err := binary.Write(w, Endianness, r); err != nil {
		return fmt.Errorf("failed to write report body: %w", err)
	}
	if err := binary.Write(w, Endianness, hash.Sum32()); err != nil {
		return fmt.Errorf("failed to write report checksum: %w", err)
	}
	return nil
}

// ReadReport reads one report packet from the stream.
func ReadReport(r io.Reader) (Report, error) {
	hash := crc32.NewIEEE()
	tr := io.TeeReader(r, hash)

	var typeBuf [1]byte
	if _, err := io.ReadFull(tr, typeBuf[:]); err != nil {
		return Report{}, fmt.Errorf("failed to read report type: %w", err)
	}
	if typeBuf[0] != reportType {
		return Report{}, fmt.Errorf("unknown report type: %d", typeBuf[0])
	}

	var report Report
	if err := binary.Read(tr, Endianness, &report); err != nil {
		return Report{}, fmt.Errorf("failed to read report body: %w", err)
	}

	sum := hash.Sum32()

	var checksum uint32
	if err := binary.Read(tr, Endianness, &checksum); err != nil {
		return Report{}, fmt.Errorf("failed to read report checksum: %w", err)
	}
	if checksum != sum {
		return Report{}, fmt.Errorf("report checksum mismatch")
	}

	return report, nil
}

// Sampler holds the freshest report behind a lock so the main loop can poll
// it without blocking on serial reads.
type Sampler struct {
	mu     sync.Mutex
	latest Report
	seen   bool
}

// Update stores a freshly parsed report. Called from the read goroutine.
func (s *Sampler) Update(r Report) {
	s.mu.Lock()
	s.latest = r
	s.seen = true
	s.mu.Unlock()
}

// Sample returns the most recent report and whether any report has arrived
// yet. Never blocks.
func (s *Sampler) Sample() (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.seen
}
