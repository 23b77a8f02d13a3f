// Package signaling exposes the relay engine over WebSocket.
//
// Each accepted connection is registered with the engine and pumped by
// two goroutines: the HTTP handler goroutine reads inbound frames and
// feeds them to the engine, and a writer goroutine drains the
// connection's outbound queue. WebSocket ping/pong control frames carry
// the liveness probes, so probe traffic never competes with signaling
// payloads for the JSON message stream.
package signaling
