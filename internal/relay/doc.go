// Package relay implements the room membership and message relay core:
// the connection registry, the room table, and the liveness monitor.
//
// The transport adapter (internal/signaling) feeds connection events
// into the Engine and supplies a non-blocking send primitive per
// connection; everything stateful about rooms lives here.
package relay
