package interfaces

import (
	"context"

	"studysync/pkg/types"
)

// Transport is one bidirectional, message-oriented connection to the
// real-time substrate. The engine owns connection lifecycle policy
// (heartbeat, reconnect) but not the transport implementation. The
// substrate is trusted to deliver a written envelope to all subscribers
// of the session channel; the engine performs no server-side fan-out.
type Transport interface {
	// WriteEnvelope sends an envelope to the session channel (thread-safe).
	WriteEnvelope(env *types.Envelope) error

	// ReadEnvelope blocks until the next inbound envelope or a transport
	// error. Only the connection supervisor's read loop calls this.
	ReadEnvelope() (*types.Envelope, error)

	// Close terminates the connection and releases resources. Safe to call
	// more than once.
	Close() error
}

// Dialer establishes transport connections to a session channel. Injected
// into the connection supervisor so reconnect policy stays independent of
// the concrete transport.
type Dialer interface {
	Dial(ctx context.Context, sessionID string, identity *types.Identity) (Transport, error)
}
