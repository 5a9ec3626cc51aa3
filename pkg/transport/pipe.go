package transport

import (
	"sync"

	"github.com/google/uuid"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// Pipe is one end of an in-process transport pair.
//
// Messages sent on one end are delivered synchronously to the handler of the
// other end. With a codec, every message is encoded and decoded on the way so
// the receiver sees exactly what a remote peer would.
type Pipe struct {
	id    string
	codec wire.Codec

	mu   sync.Mutex
	box  inbox
	peer *Pipe
	done bool

	lastErr error
}

// NewPipe creates a connected pair. A nil codec passes messages by reference.
func NewPipe(codec wire.Codec) (*Pipe, *Pipe) {
	a := &Pipe{id: uuid.New().String(), codec: codec}
	b := &Pipe{id: uuid.New().String(), codec: codec}
	a.peer, b.peer = b, a
	return a, b
}

// ID returns the pipe end's id.
func (p *Pipe) ID() string { return p.id }

// Peer returns the other end.
func (p *Pipe) Peer() *Pipe { return p.peer }

// SendMessage delivers msg to the other end.
func (p *Pipe) SendMessage(msg wire.Message) {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done {
		return
	}

	if p.codec != nil {
		data, err := p.codec.Encode(msg)
		if err == nil {
			msg, err = p.codec.Decode(data)
		}
		if err != nil {
			p.mu.Lock()
			p.lastErr = err
			p.mu.Unlock()
			return
		}
	}
	p.peer.deliver(msg)
}

// Err returns the last encoding error, if any.
func (p *Pipe) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// SetHandler installs h as the receiver of this end.
func (p *Pipe) SetHandler(h Handler) {
	p.mu.Lock()
	held, closed := p.box.take(h)
	p.mu.Unlock()

	for _, msg := range held {
		h.MessageReceived(msg, p)
	}
	if closed && h != nil {
		h.TransportClosed(p)
	}
}

func (p *Pipe) deliver(msg wire.Message) {
	p.mu.Lock()
	h := p.box.handler
	if h == nil {
		p.box.held = append(p.box.held, msg)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	h.MessageReceived(msg, p)
}

// Close closes both ends. Each end's handler is told once.
func (p *Pipe) Close() error {
	p.closeEnd()
	p.peer.closeEnd()
	return nil
}

func (p *Pipe) closeEnd() {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	h := p.box.handler
	if h == nil {
		p.box.closed = true
	}
	p.mu.Unlock()

	if h != nil {
		h.TransportClosed(p)
	}
}
