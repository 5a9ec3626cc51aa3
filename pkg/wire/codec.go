package wire

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Codec turns messages into frames and back.
type Codec interface {
	// Name identifies the codec, e.g. as a WebSocket subprotocol suffix.
	Name() string

	// Binary reports whether frames are binary rather than UTF-8 text.
	Binary() bool

	Encode(msg Message) ([]byte, error)
	Decode(data []byte) (Message, error)
}

// Codecs shipped with the package.
var (
	JSON Codec = jsonCodec{}
	CBOR Codec = cborCodec{}
)

// CodecByName returns the codec with the given name, or nil.
func CodecByName(name string) Codec {
	switch name {
	case JSON.Name():
		return JSON
	case CBOR.Name():
		return CBOR
	default:
		return nil
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(map[string]any(msg))
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

func (jsonCodec) Decode(data []byte) (Message, error) {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedMessage)
	}
	return Message(msg), nil
}

// encMode is the CBOR encoder mode for messages.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for messages.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical, // Deterministic key ordering
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		ShortestFloat: cbor.ShortestFloat16,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Nested maps decode with string keys so values look the same as JSON ones.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		DefaultMapType:    reflect.TypeFor[map[string]any](),
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

type cborCodec struct{}

func (cborCodec) Name() string { return "cbor" }
func (cborCodec) Binary() bool { return true }

func (cborCodec) Encode(msg Message) ([]byte, error) {
	data, err := encMode.Marshal(map[string]any(msg))
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

func (cborCodec) Decode(data []byte) (Message, error) {
	var msg map[string]any
	if err := decMode.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: not a map", ErrMalformedMessage)
	}
	return Message(msg), nil
}

// NewEncoder creates a CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
