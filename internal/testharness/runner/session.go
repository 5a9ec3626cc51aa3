package runner

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/mash-protocol/webchannel-go/pkg/inspect"
	"github.com/mash-protocol/webchannel-go/pkg/transport"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// Session errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrConnectionClosed = errors.New("connection closed by server")
	ErrUnknownObject    = errors.New("unknown object")
	ErrUnknownMember    = errors.New("unknown member")
)

type eventKind int

const (
	eventOther eventKind = iota
	eventResponse
	eventSignal
	eventProperty
)

// event is one observation taken from an inbound message. A PropertyUpdate
// yields one event per changed property and per batched signal.
type event struct {
	kind    eventKind
	msgType wire.MessageType
	object  string
	index   int
	id      any
	value   any
}

// session is one client connection to the server under test.
type session struct {
	ws       *transport.WebSocket
	autoIdle bool

	incoming chan wire.Message
	closed   chan struct{}
	stopped  chan struct{}
	once     sync.Once
	stopOnce sync.Once

	// Touched only by the step goroutine.
	pending []event
	nextID  int
	objects map[string]*inspect.ObjectInfo
	values  map[string]map[int]any
}

func newSession(ws *transport.WebSocket, autoIdle bool) *session {
	s := &session{
		ws:       ws,
		autoIdle: autoIdle,
		incoming: make(chan wire.Message, 256),
		closed:   make(chan struct{}),
		stopped:  make(chan struct{}),
		objects:  make(map[string]*inspect.ObjectInfo),
		values:   make(map[string]map[int]any),
	}
	ws.SetHandler(s)
	return s
}

// MessageReceived implements transport.Handler. Like a browser client the
// session reports itself idle again after every property update.
func (s *session) MessageReceived(msg wire.Message, _ transport.Transport) {
	if s.autoIdle && msg.Type() == wire.TypePropertyUpdate {
		s.ws.SendMessage(wire.NewRequest(wire.TypeIdle, nil, nil))
	}
	select {
	case s.incoming <- msg:
	case <-s.stopped:
	}
}

// TransportClosed implements transport.Handler.
func (s *session) TransportClosed(transport.Transport) {
	s.once.Do(func() { close(s.closed) })
}

func (s *session) close() error {
	s.stopOnce.Do(func() { close(s.stopped) })
	return s.ws.Close()
}

func (s *session) send(msg wire.Message) {
	s.ws.SendMessage(msg)
}

// request sends a message with a fresh id and returns that id.
func (s *session) request(t wire.MessageType, fields map[string]any) float64 {
	s.nextID++
	id := float64(s.nextID)
	s.send(wire.NewRequest(t, id, fields))
	return id
}

// response waits for the response to the request with the given id.
func (s *session) response(ctx context.Context, id any) (any, error) {
	want, ok := wire.Float(id)
	if !ok {
		return nil, fmt.Errorf("invalid request id %v", id)
	}
	e, err := s.await(ctx, func(e event) bool {
		got, ok := wire.Float(e.id)
		return e.kind == eventResponse && ok && got == want
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for response %v: %w", id, err)
	}
	return e.value, nil
}

// await returns the first event matching match, consuming it. Events that
// do not match stay queued for later steps.
func (s *session) await(ctx context.Context, match func(event) bool) (event, error) {
	for {
		if i := slices.IndexFunc(s.pending, match); i >= 0 {
			e := s.pending[i]
			s.pending = slices.Delete(s.pending, i, i+1)
			return e, nil
		}
		select {
		case msg := <-s.incoming:
			s.absorb(msg)
		case <-s.closed:
			select {
			case msg := <-s.incoming:
				s.absorb(msg)
				continue
			default:
			}
			return event{}, ErrConnectionClosed
		case <-ctx.Done():
			return event{}, ctx.Err()
		}
	}
}

// drain absorbs everything received so far without blocking.
func (s *session) drain() {
	for {
		select {
		case msg := <-s.incoming:
			s.absorb(msg)
		default:
			return
		}
	}
}

func (s *session) absorb(msg wire.Message) {
	t := msg.Type()
	switch t {
	case wire.TypeResponse:
		id, _ := msg.ID()
		s.pending = append(s.pending, event{kind: eventResponse, msgType: t, id: id, value: msg[wire.KeyData]})
		s.learnObjects(msg[wire.KeyData])

	case wire.TypeSignal:
		object, _ := msg.String(wire.KeyObject)
		signal, _ := msg.Int(wire.KeySignal)
		args, _ := msg.Args()
		s.pending = append(s.pending, event{kind: eventSignal, msgType: t, object: object, index: signal, value: args})

	case wire.TypePropertyUpdate:
		entries, _ := msg[wire.KeyData].([]any)
		for _, raw := range entries {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			object, _ := entry[wire.KeyObject].(string)
			props, _ := entry[wire.KeyProperties].(map[string]any)
			for _, index := range sortedIndices(props) {
				value := props[strconv.Itoa(index)]
				s.setValue(object, index, value)
				s.pending = append(s.pending, event{kind: eventProperty, msgType: t, object: object, index: index, value: value})
			}
			sigs, _ := entry[wire.KeySignals].(map[string]any)
			for _, index := range sortedIndices(sigs) {
				args, _ := sigs[strconv.Itoa(index)].([]any)
				s.pending = append(s.pending, event{kind: eventSignal, msgType: t, object: object, index: index, value: args})
			}
		}

	default:
		s.pending = append(s.pending, event{kind: eventOther, msgType: t})
	}
}

func sortedIndices(m map[string]any) []int {
	out := make([]int, 0, len(m))
	for _, key := range slices.Sorted(maps.Keys(m)) {
		if n, err := strconv.Atoi(key); err == nil {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}

// learnInit records the objects described by an Init response.
func (s *session) learnInit(data any) ([]*inspect.ObjectInfo, error) {
	infos, err := inspect.DecodeInit(data)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		s.addObject(info)
	}
	return infos, nil
}

// learnObjects records wrapped objects found in a response value.
func (s *session) learnObjects(v any) {
	switch val := v.(type) {
	case map[string]any:
		if wire.IsObjectRef(val) {
			id, _ := wire.ObjectRefID(val)
			if data, ok := val[wire.KeyData]; ok {
				if info, err := inspect.DecodeClassInfo(id, data); err == nil {
					s.addObject(info)
				}
			}
			return
		}
		for _, item := range val {
			s.learnObjects(item)
		}
	case []any:
		for _, item := range val {
			s.learnObjects(item)
		}
	}
}

func (s *session) addObject(info *inspect.ObjectInfo) {
	s.objects[info.ID] = info
	for _, p := range info.Properties {
		s.setValue(info.ID, p.Index, p.Value)
	}
}

func (s *session) setValue(object string, index int, value any) {
	m, ok := s.values[object]
	if !ok {
		m = make(map[int]any)
		s.values[object] = m
	}
	m[index] = value
}

// value returns the last known value of a property.
func (s *session) value(object string, index int) (any, bool) {
	v, ok := s.values[object][index]
	return v, ok
}

// propertyIndex resolves a property given by name or index.
func (s *session) propertyIndex(object string, ref any) (int, error) {
	if n, ok := wire.Int(ref); ok {
		return int(n), nil
	}
	name, ok := ref.(string)
	if !ok {
		return 0, fmt.Errorf("%w: property %v", ErrUnknownMember, ref)
	}
	info, ok := s.objects[object]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownObject, object)
	}
	for _, p := range info.Properties {
		if p.Name == name {
			return p.Index, nil
		}
	}
	return 0, fmt.Errorf("%w: %s.%s", ErrUnknownMember, object, name)
}

// signalIndex resolves a signal given by name or index.
func (s *session) signalIndex(object string, ref any) (int, error) {
	if n, ok := wire.Int(ref); ok {
		return int(n), nil
	}
	name, ok := ref.(string)
	if !ok {
		return 0, fmt.Errorf("%w: signal %v", ErrUnknownMember, ref)
	}
	info, ok := s.objects[object]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownObject, object)
	}
	for _, sig := range info.Signals {
		if sig.Signature == name {
			return sig.Index, nil
		}
	}
	return 0, fmt.Errorf("%w: %s.%s", ErrUnknownMember, object, name)
}
