// Package wire defines the message format spoken between a channel and its
// remote peers.
//
// A message is a flat map of wire values with a numeric "type" field. Wire
// values are the JSON value tree: null, bool, number, string, array and
// object (string keys). Published objects travel as object references, maps
// flagged with ObjectMarkerKey.
//
// # Message Types
//
// Host to peer: Signal (1), PropertyUpdate (2), Response (10).
// Peer to host: Init (3), Idle (4), Debug (5), InvokeMethod (6),
// ConnectToSignal (7), DisconnectFromSignal (8), SetProperty (9).
//
// # Codecs
//
// JSON is the default text encoding. CBOR (RFC 8949) carries the same value
// tree in binary frames for peers that negotiate it.
package wire
