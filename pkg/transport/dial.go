package transport

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// Dial connects to a WebSocket server and returns a started transport.
// The requested subprotocol follows config.Codec, defaulting to JSON.
func Dial(ctx context.Context, url string, config WebSocketConfig) (*WebSocket, error) {
	subprotocol := SubprotocolJSON
	if config.Codec == wire.CBOR {
		subprotocol = SubprotocolCBOR
	}
	dialer := websocket.Dialer{
		Proxy:           websocket.DefaultDialer.Proxy,
		Subprotocols:    []string{subprotocol},
		TLSClientConfig: config.TLSClientConfig,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	t := NewWebSocket(conn, config)
	t.Start(ctx)
	return t, nil
}
