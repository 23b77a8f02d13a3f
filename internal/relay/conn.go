package relay

import (
	"sync/atomic"

	"github.com/signalmesh/signal-relay/internal/wire"
)

// Transport is the per-connection I/O surface supplied by the transport
// adapter.
//
// Send must not block: implementations buffer or drop. Probe requests a
// liveness round-trip; the adapter reports the response through
// Engine.HandleProbeAck. Close tears down the underlying connection.
type Transport interface {
	Send(msg wire.ServerMessage) error
	Probe() error
	Close() error
}

// Conn is the registry entry for one signaling connection. The peer id
// is assigned at registration and doubles as the address for directed
// signals.
type Conn struct {
	id        string
	transport Transport

	// alive is cleared before each liveness probe and set again when the
	// probe response arrives.
	alive atomic.Bool
}

func (c *Conn) ID() string { return c.id }
