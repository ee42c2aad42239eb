package peersync

// Transport is the connectionless broadcast channel the protocol speaks
// over. Sends are fire-and-forget; delivery is never acknowledged and loss
// is tolerated by design, since the next broadcast repeats current state.
type Transport interface {
	// Send broadcasts a payload to all peers.
	Send(payload []byte) error
	// Reinit tears the channel down and brings it back up. The protocol
	// calls it after repeated send failures.
	Reinit() error
}
