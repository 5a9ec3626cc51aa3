package publisher

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/mash-protocol/webchannel-go/pkg/meta"
	"github.com/mash-protocol/webchannel-go/pkg/transport"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// Description keys.
const (
	keyEnums      = "enums"
	keyMethods    = "methods"
	keySignals    = "signals"
	keyProperties = "properties"
)

// wrapScope carries the context of one recursive wrap: the transport the
// result goes to, the id of the object whose member is being converted and
// the objects currently being described.
type wrapScope struct {
	transport transport.Transport
	parentID  string
	visiting  map[meta.Object]struct{}
}

func (s *wrapScope) child(parentID string) *wrapScope {
	return &wrapScope{transport: s.transport, parentID: parentID, visiting: s.visiting}
}

// WrapResult converts a native value for transmission. Objects inside it are
// replaced by object references, publishing them on first sight: they become
// visible to t, or with a nil t to the transports that can see parentID, or
// to every transport. Values that cannot be converted become null.
func (p *Publisher) WrapResult(value any, t transport.Transport, parentID string) any {
	scope := &wrapScope{transport: t, parentID: parentID, visiting: make(map[meta.Object]struct{})}
	return p.wrapValue(value, scope)
}

func (p *Publisher) wrapValue(value any, scope *wrapScope) any {
	out, err := p.conv.ToWire(value, func(obj meta.Object) any {
		return p.wrapObject(obj, scope)
	})
	if err != nil {
		p.warnLog("publisher: cannot convert value", "type", fmt.Sprintf("%T", value), "error", err)
		return nil
	}
	return out
}

func (p *Publisher) wrapList(values []any, scope *wrapScope) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = p.wrapValue(v, scope)
	}
	return out
}

func (p *Publisher) wrapObject(obj meta.Object, scope *wrapScope) any {
	if isNil(obj) || obj.IsDestroyed() {
		p.warnLog("publisher: cannot wrap nil or destroyed object")
		return nil
	}
	if id, ok := p.registeredIDs[obj]; ok {
		return wire.NewObjectRef(id, nil)
	}

	if id, ok := p.wrappedIDs[obj]; ok {
		w := p.wrapped[id]
		if _, busy := scope.visiting[obj]; busy {
			return wire.NewObjectRef(id, nil)
		}
		added := false
		for _, t := range p.recipients(scope) {
			if !w.hasTransport(t) {
				w.transports = append(w.transports, t)
				added = true
			}
		}
		// A peer seeing the object for the first time gets current values
		// and becomes owner of the objects nested in them.
		if added || w.info == nil {
			scope.visiting[obj] = struct{}{}
			w.info = p.classInfo(obj, w.typ, scope.child(id))
			delete(scope.visiting, obj)
		}
		return wire.NewObjectRef(id, w.info)
	}

	typ, ok := p.typeOf(obj)
	if !ok {
		p.warnLog("publisher: cannot wrap object without meta type", "type", fmt.Sprintf("%T", obj))
		return nil
	}

	// The id is recorded before describing so that self-references resolve to it.
	w := &wrappedObject{id: uuid.NewString(), obj: obj, typ: typ, transports: p.recipients(scope)}
	p.wrapped[w.id] = w
	p.wrappedIDs[obj] = w.id

	scope.visiting[obj] = struct{}{}
	w.info = p.classInfo(obj, typ, scope.child(w.id))
	delete(scope.visiting, obj)

	p.hookDestroyed(obj, typ)
	p.observe(obj, typ)
	p.logObject(w.id, "WRAPPED")
	p.debugLog("publisher: object wrapped", "id", w.id, "type", typ.Name(), "transports", len(w.transports))
	return wire.NewObjectRef(w.id, w.info)
}

// recipients returns the transports a value wrapped in scope reaches: the
// scope's transport, else those that can see the parent, else all of them.
func (p *Publisher) recipients(scope *wrapScope) []transport.Transport {
	if scope.transport != nil {
		return []transport.Transport{scope.transport}
	}
	if parent := p.wrapped[scope.parentID]; parent != nil && len(parent.transports) > 0 {
		return slices.Clone(parent.transports)
	}
	return p.sender.Transports()
}

// ClassInfo describes obj for t: its enums, methods, signals and properties
// with their current values.
func (p *Publisher) ClassInfo(obj meta.Object, t transport.Transport) map[string]any {
	typ, ok := p.typeOf(obj)
	if !ok {
		p.warnLog("publisher: cannot describe object without meta type", "type", fmt.Sprintf("%T", obj))
		return nil
	}
	id, _ := p.ObjectID(obj)
	scope := &wrapScope{transport: t, parentID: id, visiting: map[meta.Object]struct{}{obj: {}}}
	return p.classInfo(obj, typ, scope)
}

func (p *Publisher) classInfo(obj meta.Object, typ *meta.Type, scope *wrapScope) map[string]any {
	identifiers := make(map[string]bool)
	notifySignals := make(map[int]bool)

	properties := make([]any, 0, len(typ.Properties()))
	for _, prop := range typ.Properties() {
		identifiers[prop.Name] = true
		var value any
		if prop.Read != nil {
			value = p.wrapValue(prop.Read(obj), scope)
		}
		properties = append(properties, []any{
			float64(prop.Index),
			prop.Name,
			p.changeInfo(typ, prop, notifySignals),
			value,
		})
	}

	methods := []any{}
	sigs := []any{}
	for _, m := range typ.Methods() {
		if notifySignals[m.Index] || !m.IsPublic() {
			continue
		}
		idx := float64(m.Index)
		if !identifiers[m.Name] {
			identifiers[m.Name] = true
			if m.IsSignal() {
				sigs = append(sigs, []any{m.Name, idx})
			} else {
				methods = append(methods, []any{m.Name, idx})
			}
		}
		if !m.IsSignal() {
			methods = append(methods, []any{m.Signature(), idx})
		}
	}

	enums := make(map[string]any, len(typ.Enums()))
	for _, e := range typ.Enums() {
		members := make(map[string]any, len(e.Members))
		for _, m := range e.Members {
			members[m.Name] = float64(m.Value)
		}
		enums[e.Name] = members
	}

	return map[string]any{
		keyEnums:      enums,
		keyMethods:    methods,
		keySignals:    sigs,
		keyProperties: properties,
	}
}

// changeInfo returns [] for a property without change signal, [1, idx] for
// the conventional "<name>Changed" signal and [signalName, idx] otherwise.
func (p *Publisher) changeInfo(typ *meta.Type, prop *meta.Property, notifySignals map[int]bool) []any {
	if !prop.HasNotify() {
		if !prop.Constant {
			p.debugLog("publisher: property has no change signal and is not constant, clients will see stale values",
				"type", typ.Name(), "property", prop.Name)
		}
		return []any{}
	}
	notifySignals[prop.Notify] = true
	sig := typ.Method(prop.Notify)
	if len(sig.Params) > 1 {
		p.warnLog("publisher: change signal has more than one argument",
			"type", typ.Name(), "property", prop.Name, "signal", sig.Name)
	}
	if sig.Name == prop.Name+"Changed" {
		return []any{float64(1), float64(prop.Notify)}
	}
	return []any{sig.Name, float64(prop.Notify)}
}

// propertyKey formats a member index as a JSON object key.
func propertyKey(i int) string {
	return strconv.Itoa(i)
}

// isNil reports whether obj is nil or a typed nil pointer.
func isNil(obj meta.Object) bool {
	if obj == nil {
		return true
	}
	v := reflect.ValueOf(obj)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
