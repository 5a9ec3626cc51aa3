// Package transport carries web channel messages between a host and its
// clients.
//
// A Transport delivers decoded wire.Message values to a Handler and accepts
// outbound messages without blocking. Two implementations are provided:
//
//   - Pipe: an in-process pair, optionally passing every message through a
//     codec so the receiver sees exactly what a remote peer would.
//   - WebSocket: one gorilla/websocket connection. The codec is negotiated
//     with the "webchannel.json" and "webchannel.cbor" subprotocols; JSON
//     frames are text, CBOR frames binary.
//
// Server is an http.Handler that upgrades requests into WebSocket
// transports; Dial opens the client side.
//
// # Keep-alive
//
// WebSocket transports send numbered ping control frames and close the
// connection after MaxMissedPongs consecutive pings go unanswered for
// PongTimeout. With the defaults a dead peer is noticed within
// DetectionDelay, about 100 seconds.
package transport
