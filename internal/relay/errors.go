package relay

import "errors"

var (
	// ErrTooManyConnections is returned by Register when the configured
	// connection cap is reached. The transport adapter is expected to
	// close the socket.
	ErrTooManyConnections = errors.New("too many connections")
)
