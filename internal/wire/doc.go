// Package wire defines the JSON messages exchanged between signaling
// peers and the relay.
//
// The schema is a small set of "type"-discriminated records. Unknown
// top-level fields are ignored so clients can extend messages without
// breaking older relays; an unknown or missing "type" is rejected.
package wire
