package wire

import (
	"errors"
	"fmt"
	"math"
)

// Message keys.
const (
	KeyType     = "type"
	KeyID       = "id"
	KeyObject   = "object"
	KeyMethod   = "method"
	KeySignal   = "signal"
	KeyProperty = "property"
	KeyValue    = "value"
	KeyArgs     = "args"
	KeyData     = "data"
	KeyMessage  = "message"

	// Keys inside PropertyUpdate entries.
	KeySignals    = "signals"
	KeyProperties = "properties"

	// Keys inside object descriptions.
	KeyEnums   = "enums"
	KeyMethods = "methods"
)

// Message errors.
var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownType      = errors.New("unknown message type")
)

// MessageType is the value of a message's "type" field.
type MessageType int

const (
	TypeInvalid              MessageType = 0
	TypeSignal               MessageType = 1
	TypePropertyUpdate       MessageType = 2
	TypeInit                 MessageType = 3
	TypeIdle                 MessageType = 4
	TypeDebug                MessageType = 5
	TypeInvokeMethod         MessageType = 6
	TypeConnectToSignal      MessageType = 7
	TypeDisconnectFromSignal MessageType = 8
	TypeSetProperty          MessageType = 9
	TypeResponse             MessageType = 10
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case TypeSignal:
		return "SIGNAL"
	case TypePropertyUpdate:
		return "PROPERTY_UPDATE"
	case TypeInit:
		return "INIT"
	case TypeIdle:
		return "IDLE"
	case TypeDebug:
		return "DEBUG"
	case TypeInvokeMethod:
		return "INVOKE_METHOD"
	case TypeConnectToSignal:
		return "CONNECT_TO_SIGNAL"
	case TypeDisconnectFromSignal:
		return "DISCONNECT_FROM_SIGNAL"
	case TypeSetProperty:
		return "SET_PROPERTY"
	case TypeResponse:
		return "RESPONSE"
	default:
		return "INVALID"
	}
}

// IsValid returns true for the ten defined message types.
func (t MessageType) IsValid() bool {
	return t >= TypeSignal && t <= TypeResponse
}

// Message is one protocol message: a flat map of wire values.
//
// Wire values are nil, bool, numbers, string, []any and map[string]any.
// Numbers decode as float64 from JSON and as int64/uint64/float64 from CBOR;
// accessors accept all of them.
type Message map[string]any

// Type returns the message type, TypeInvalid if absent or not a number.
func (m Message) Type() MessageType {
	n, ok := Int(m[KeyType])
	if !ok || n < math.MinInt32 || n > math.MaxInt32 {
		return TypeInvalid
	}
	return MessageType(n)
}

// ID returns the raw request id, if present.
func (m Message) ID() (any, bool) {
	v, ok := m[KeyID]
	return v, ok
}

// String returns a string field.
func (m Message) String(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// Int returns an integral number field.
func (m Message) Int(key string) (int, bool) {
	n, ok := Int(m[key])
	if !ok || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

// Args returns the "args" array. A missing field is an empty argument list;
// a field that is not an array is reported as not ok.
func (m Message) Args() ([]any, bool) {
	v, present := m[KeyArgs]
	if !present || v == nil {
		return nil, true
	}
	args, ok := v.([]any)
	return args, ok
}

// Validate checks that the message carries a known type.
func (m Message) Validate() error {
	if _, ok := m[KeyType]; !ok {
		return fmt.Errorf("%w: missing %q", ErrMalformedMessage, KeyType)
	}
	t := m.Type()
	if !t.IsValid() {
		return fmt.Errorf("%w: %v", ErrUnknownType, m[KeyType])
	}
	return nil
}

// NewResponse builds a Response to the request with the given id.
func NewResponse(id any, data any) Message {
	return Message{
		KeyType: float64(TypeResponse),
		KeyID:   id,
		KeyData: data,
	}
}

// NewSignal builds a Signal message.
func NewSignal(object string, signal int, args []any) Message {
	if args == nil {
		args = []any{}
	}
	return Message{
		KeyType:   float64(TypeSignal),
		KeyObject: object,
		KeySignal: float64(signal),
		KeyArgs:   args,
	}
}

// NewPropertyUpdate builds a PropertyUpdate message from per-object entries.
func NewPropertyUpdate(entries []any) Message {
	return Message{
		KeyType: float64(TypePropertyUpdate),
		KeyData: entries,
	}
}

// NewRequest builds a client-to-host message. Used by tests and Go clients.
func NewRequest(t MessageType, id any, fields map[string]any) Message {
	m := Message{KeyType: float64(t)}
	if id != nil {
		m[KeyID] = id
	}
	for k, v := range fields {
		m[k] = v
	}
	return m
}
