package peersync

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// UDPConfig holds the broadcast channel settings.
type UDPConfig struct {
	// Port is the UDP port shared by the whole fleet.
	Port int
	// BroadcastAddr is the destination address for sends. Defaults to the
	// limited broadcast address.
	BroadcastAddr string
	// InitRetries bounds how many times opening the socket is attempted
	// at boot before giving up.
	InitRetries int
	// InitRetryDelay is the pause between boot-time open attempts.
	InitRetryDelay time.Duration
}

// DefaultUDPConfig returns the stock channel settings.
func DefaultUDPConfig() UDPConfig {
	return UDPConfig{
		Port:           7677,
		BroadcastAddr:  "255.255.255.255",
		InitRetries:    3,
		InitRetryDelay: time.Second,
	}
}

// UDPTransport broadcasts sync messages over a shared UDP port. Every
// device both sends to and listens on the same port, so each device also
// hears its own broadcasts; the protocol's timestamp comparison discards
// those.
type UDPTransport struct {
	cfg    UDPConfig
	dest   *net.UDPAddr
	logger *slog.Logger

	mu   sync.Mutex
	conn *net.UDPConn
}

// NewUDPTransport opens the broadcast socket, retrying a bounded number of
// times before reporting failure. The logger may be nil.
func NewUDPTransport(cfg UDPConfig, logger *slog.Logger) (*UDPTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BroadcastAddr == "" {
		cfg.BroadcastAddr = "255.255.255.255"
	}
	if cfg.InitRetries < 1 {
		cfg.InitRetries = 1
	}

	ip := net.ParseIP(cfg.BroadcastAddr)
	if ip == nil {
		return nil, errors.Errorf("invalid broadcast address %q", cfg.BroadcastAddr)
	}

	t := &UDPTransport{
		cfg:    cfg,
		dest:   &net.UDPAddr{IP: ip, Port: cfg.Port},
		logger: logger,
	}

	var err error
	for attempt := 1; attempt <= cfg.InitRetries; attempt++ {
		if err = t.open(); err == nil {
			return t, nil
		}
		logger.Warn(
			"failed to open sync socket",
			"attempt", attempt,
			"error", err)
		if attempt < cfg.InitRetries {
			time.Sleep(cfg.InitRetryDelay)
		}
	}
	return nil, errors.Wrap(err, "failed to open sync socket")
}

func (t *UDPTransport) open() error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: t.cfg.Port})
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

// Send broadcasts one payload. It never blocks beyond the kernel send path.
func (t *UDPTransport) Send(payload []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return errors.New("sync socket is not open")
	}
	if _, err := conn.WriteToUDP(payload, t.dest); err != nil {
		return errors.Wrap(err, "failed to broadcast")
	}
	return nil
}

// Reinit tears the socket down and opens a fresh one.
func (t *UDPTransport) Reinit() error {
	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.mu.Unlock()

	return errors.Wrap(t.open(), "failed to reopen sync socket")
}

// Close shuts the socket down for good.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// Listen reads datagrams until the context is canceled, delivering each
// well-sized payload to fn. The callback runs on the listen goroutine and
// must only perform short, non-blocking state updates.
func (t *UDPTransport) Listen(ctx context.Context, fn func([]byte)) error {
	buf := make([]byte, 64)
	for ctx.Err() == nil {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()

		if conn == nil {
			// Reinit is in flight; back off instead of spinning.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			// The socket may have been swapped out underneath us by
			// Reinit or Close. Loop and pick up the new one, or exit if
			// the context is gone.
			continue
		}

		if n != MessageSize {
			t.logger.Debug("dropping undersized or oversized datagram", "len", n)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		fn(payload)
	}
	return ctx.Err()
}
