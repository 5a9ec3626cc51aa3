package transport

import (
	"errors"

	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// Transport errors.
var (
	ErrClosed    = errors.New("transport closed")
	ErrQueueFull = errors.New("send queue full")
)

// Handler receives what a transport reads. Calls may come from any goroutine.
type Handler interface {
	// MessageReceived delivers one decoded inbound message.
	MessageReceived(msg wire.Message, from Transport)

	// TransportClosed is called once when the transport goes away.
	TransportClosed(t Transport)
}

// Transport is a bidirectional message pipe to one remote peer.
type Transport interface {
	// ID uniquely identifies the transport, for logs and metrics.
	ID() string

	// SendMessage queues msg for the peer. It never blocks on the network;
	// failures are handled by the transport, typically by closing it.
	SendMessage(msg wire.Message)

	// SetHandler installs the receiver of inbound messages, replacing any
	// previous one. Nil detaches. Messages that arrive while no handler is
	// installed are held and delivered to the next handler.
	SetHandler(h Handler)
}

// inbox holds messages and the close notification until a handler exists.
// Embedders guard it with their own mutex.
type inbox struct {
	handler Handler
	held    []wire.Message
	closed  bool
}

// take installs h and returns what must be delivered to it.
func (b *inbox) take(h Handler) (held []wire.Message, closed bool) {
	b.handler = h
	if h == nil {
		return nil, false
	}
	held, b.held = b.held, nil
	return held, b.closed
}

// Compile-time interface satisfaction checks.
var (
	_ Transport = (*Pipe)(nil)
	_ Transport = (*WebSocket)(nil)
)
