package log

import (
	"time"

	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// MaxFrameCapture is the number of frame bytes kept in a FrameEvent.
const MaxFrameCapture = 256

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// TransportID identifies the transport the event belongs to.
	TransportID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer address, when the transport has one.
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Transport/client/object state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates a message from the peer.
	DirectionIn Direction = 0
	// DirectionOut indicates a message to the peer.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the frame layer (encoded bytes).
	LayerTransport Layer = 0
	// LayerWire is the decoded message layer.
	LayerWire Layer = 1
	// LayerChannel is the channel and publisher layer.
	LayerChannel Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerChannel:
		return "CHANNEL"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a frame or protocol message.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures an encoded frame at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the frame bytes, truncated to MaxFrameCapture.
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewFrameEvent captures data, truncating long frames.
func NewFrameEvent(data []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(data)}
	if len(data) > MaxFrameCapture {
		fe.Data = append([]byte(nil), data[:MaxFrameCapture]...)
		fe.Truncated = true
	} else {
		fe.Data = append([]byte(nil), data...)
	}
	return fe
}

// MessageEvent captures a decoded protocol message.
type MessageEvent struct {
	// Type is the message type.
	Type wire.MessageType `cbor:"1,keyasint"`

	// RequestID correlates InvokeMethod/Init requests with their Response.
	RequestID any `cbor:"2,keyasint,omitempty"`

	// Object is the target object id, if any.
	Object string `cbor:"3,keyasint,omitempty"`

	// Member is the method, signal or property index, if any.
	Member *int `cbor:"4,keyasint,omitempty"`

	// Payload is the full message.
	Payload any `cbor:"5,keyasint,omitempty"`
}

// NewMessageEvent extracts the loggable fields of msg.
func NewMessageEvent(msg wire.Message) *MessageEvent {
	me := &MessageEvent{
		Type:    msg.Type(),
		Payload: map[string]any(msg),
	}
	if id, ok := msg.ID(); ok {
		me.RequestID = id
	}
	if obj, ok := msg.String(wire.KeyObject); ok {
		me.Object = obj
	}
	for _, key := range []string{wire.KeyMethod, wire.KeySignal, wire.KeyProperty} {
		if n, ok := msg.Int(key); ok {
			me.Member = &n
			break
		}
	}
	return me
}

// StateChangeEvent captures transport, client and object lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change, or the object id for object events.
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityTransport is a transport connecting or disconnecting.
	StateEntityTransport StateEntity = 0
	// StateEntityClient is a peer switching between idle and busy.
	StateEntityClient StateEntity = 1
	// StateEntityObject is an object being registered, wrapped or released.
	StateEntityObject StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityTransport:
		return "TRANSPORT"
	case StateEntityClient:
		return "CLIENT"
	case StateEntityObject:
		return "OBJECT"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
