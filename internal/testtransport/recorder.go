// Package testtransport provides a recording transport for tests.
package testtransport

import (
	"sync"

	"github.com/mash-protocol/webchannel-go/pkg/transport"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// Recorder is a transport that keeps every message sent to it.
//
// Sent messages pass through the JSON codec, so tests observe exactly what a
// browser peer would receive: numbers are float64 and unencodable values
// show up as errors instead of silently succeeding.
type Recorder struct {
	id string

	mu      sync.Mutex
	sent    []wire.Message
	handler transport.Handler
	closed  bool
	errs    []error
}

// New creates a recorder with the given id.
func New(id string) *Recorder {
	return &Recorder{id: id}
}

// ID returns the recorder id.
func (r *Recorder) ID() string { return r.id }

// SendMessage records msg after a JSON round trip.
func (r *Recorder) SendMessage(msg wire.Message) {
	data, err := wire.JSON.Encode(msg)
	if err == nil {
		msg, err = wire.JSON.Decode(data)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if err != nil {
		r.errs = append(r.errs, err)
		return
	}
	r.sent = append(r.sent, msg)
}

// SetHandler installs the inbound handler.
func (r *Recorder) SetHandler(h transport.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Handler returns the installed handler.
func (r *Recorder) Handler() transport.Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler
}

// Deliver hands msg to the installed handler as if the peer had sent it.
func (r *Recorder) Deliver(msg wire.Message) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h != nil {
		h.MessageReceived(msg, r)
	}
}

// Close marks the recorder closed and notifies the handler.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	h := r.handler
	r.mu.Unlock()
	if h != nil {
		h.TransportClosed(r)
	}
}

// Sent returns a copy of every recorded message.
func (r *Recorder) Sent() []wire.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wire.Message(nil), r.sent...)
}

// Take returns the recorded messages and forgets them.
func (r *Recorder) Take() []wire.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	sent := r.sent
	r.sent = nil
	return sent
}

// OfType returns the recorded messages of type t.
func (r *Recorder) OfType(t wire.MessageType) []wire.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []wire.Message
	for _, msg := range r.sent {
		if msg.Type() == t {
			out = append(out, msg)
		}
	}
	return out
}

// Count returns the number of recorded messages.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// Errors returns encoding failures.
func (r *Recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

var _ transport.Transport = (*Recorder)(nil)
