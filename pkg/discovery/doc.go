// Package discovery announces and finds WebChannel servers with mDNS/DNS-SD.
//
// Servers register one instance of the _webchannel._tcp service per
// WebSocket endpoint. The instance name is user-friendly (for example the
// host name of the demo server).
//
// TXT records:
//
//	txtvers  record format version ("1")
//	path     HTTP path of the WebSocket endpoint, e.g. "/ws"
//	proto    accepted subprotocols, comma-separated
//	objs     published object ids, comma-separated (optional)
//	tls      "1" when the endpoint requires wss:// (optional)
//
// Objects may be omitted when the list does not fit a single TXT string.
package discovery
