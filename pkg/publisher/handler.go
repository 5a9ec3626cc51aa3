package publisher

import (
	"fmt"
	"maps"
	"slices"

	"github.com/mash-protocol/webchannel-go/pkg/meta"
	"github.com/mash-protocol/webchannel-go/pkg/transport"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// HandleMessage processes one validated client message received on t.
// Problems are logged; requests that carry an id are always answered.
func (p *Publisher) HandleMessage(msg wire.Message, t transport.Transport) {
	if p.closed {
		return
	}
	switch msg.Type() {
	case wire.TypeInit:
		p.handleInit(msg, t)
	case wire.TypeIdle:
		p.SetClientIdle(t, true)
	case wire.TypeDebug:
		p.handleDebug(msg, t)
	case wire.TypeInvokeMethod:
		p.handleInvoke(msg, t)
	case wire.TypeConnectToSignal, wire.TypeDisconnectFromSignal:
		p.handleSubscription(msg, t)
	case wire.TypeSetProperty:
		p.handleSetProperty(msg, t)
	default:
		p.warnLog("publisher: unexpected message type", "transport", t.ID(), "type", msg.Type())
	}
}

// handleInit answers with the description of every registered object and
// starts property observation on the first call.
func (p *Publisher) handleInit(msg wire.Message, t transport.Transport) {
	id, ok := msg.ID()
	if !ok {
		p.warnLog("publisher: dropping init without id", "transport", t.ID())
		return
	}
	p.TransportAdded(t)

	infos := make(map[string]any, len(p.registered))
	for _, objectID := range slices.Sorted(maps.Keys(p.registered)) {
		if info := p.ClassInfo(p.registered[objectID], t); info != nil {
			infos[objectID] = info
		}
	}
	p.startObserving()
	p.respond(id, infos, t)
	p.debugLog("publisher: client initialized", "transport", t.ID(), "objects", len(infos))
}

func (p *Publisher) handleDebug(msg wire.Message, t transport.Transport) {
	text, ok := msg.String(wire.KeyData)
	if !ok {
		text, _ = msg.String(wire.KeyMessage)
	}
	if p.logger != nil {
		p.logger.Info("publisher: client debug", "transport", t.ID(), "message", text)
	}
}

// target resolves the object a request addresses.
func (p *Publisher) target(msg wire.Message) (meta.Object, string, error) {
	objectID, ok := msg.String(wire.KeyObject)
	if !ok {
		return nil, "", fmt.Errorf("%w: missing %q", wire.ErrMalformedMessage, wire.KeyObject)
	}
	obj, ok := p.Lookup(objectID)
	if !ok {
		return nil, objectID, fmt.Errorf("%w: %q", ErrUnknownObject, objectID)
	}
	return obj, objectID, nil
}

func (p *Publisher) handleInvoke(msg wire.Message, t transport.Transport) {
	id, ok := msg.ID()
	if !ok {
		p.warnLog("publisher: dropping invocation without id", "transport", t.ID())
		return
	}
	obj, objectID, err := p.target(msg)
	if err != nil {
		p.warnLog("publisher: cannot invoke method", "transport", t.ID(), "error", err)
		p.respond(id, nil, t)
		return
	}
	args, ok := msg.Args()
	if !ok {
		p.warnLog("publisher: invocation arguments are not a list", "transport", t.ID(), "object", objectID)
		p.respond(id, nil, t)
		return
	}

	result, err := p.InvokeMethod(obj, msg[wire.KeyMethod], args)
	if err != nil {
		p.warnLog("publisher: method invocation failed",
			"transport", t.ID(), "object", objectID, "method", msg[wire.KeyMethod], "error", err)
		p.respond(id, nil, t)
		return
	}
	if f, ok := result.(*meta.Future); ok && f != nil {
		p.respondLater(f, id, t)
		return
	}
	p.respond(id, p.WrapResult(result, t, ""), t)
}

func (p *Publisher) handleSubscription(msg wire.Message, t transport.Transport) {
	obj, objectID, err := p.target(msg)
	if err != nil {
		p.warnLog("publisher: cannot change signal subscription", "transport", t.ID(), "error", err)
		return
	}
	signal, ok := msg.Int(wire.KeySignal)
	if !ok {
		p.warnLog("publisher: subscription without signal index", "transport", t.ID(), "object", objectID)
		return
	}
	typ, ok := p.typeOf(obj)
	if !ok {
		return
	}

	if msg.Type() == wire.TypeConnectToSignal {
		err = p.subscribe(obj, typ, signal, t)
	} else {
		err = p.unsubscribe(obj, signal, t)
	}
	if err != nil {
		p.warnLog("publisher: signal subscription failed",
			"transport", t.ID(), "object", objectID, "signal", signal, "error", err)
	}
}

func (p *Publisher) handleSetProperty(msg wire.Message, t transport.Transport) {
	obj, objectID, err := p.target(msg)
	if err != nil {
		p.warnLog("publisher: cannot set property", "transport", t.ID(), "error", err)
		return
	}
	index, ok := msg.Int(wire.KeyProperty)
	if !ok {
		p.warnLog("publisher: property write without index", "transport", t.ID(), "object", objectID)
		return
	}
	if err := p.SetProperty(obj, index, msg[wire.KeyValue]); err != nil {
		p.warnLog("publisher: property write failed",
			"transport", t.ID(), "object", objectID, "property", index, "error", err)
	}
}

// SetProperty writes a wire value into property index of obj and schedules
// an update carrying the new value.
func (p *Publisher) SetProperty(obj meta.Object, index int, value any) error {
	typ, ok := p.typeOf(obj)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNoMetaType, obj)
	}
	prop := typ.Property(index)
	if prop == nil {
		return fmt.Errorf("%w: %s has no property %d", ErrUnknownProperty, typ.Name(), index)
	}
	if !prop.Writable() {
		return fmt.Errorf("%w: %s.%s", meta.ErrNotWritable, typ.Name(), prop.Name)
	}
	native, err := p.convertArg(value, prop.Type)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", typ.Name(), prop.Name, err)
	}
	if err := prop.Write(obj, native); err != nil {
		return fmt.Errorf("%s.%s: %w", typ.Name(), prop.Name, err)
	}
	if _, published := p.ObjectID(obj); published {
		p.markDirty(obj, index)
	}
	return nil
}
