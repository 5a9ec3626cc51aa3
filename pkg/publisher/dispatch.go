package publisher

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"weak"

	"github.com/mash-protocol/webchannel-go/pkg/convert"
	"github.com/mash-protocol/webchannel-go/pkg/meta"
	"github.com/mash-protocol/webchannel-go/pkg/transport"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// Overload scores. The lowest total over all arguments wins.
const (
	scorePerfect      = 0
	scoreVariant      = 1
	scoreNumberBase   = 2
	scoreGeneric      = 100
	scoreIncompatible = 10000
)

const deleteLaterName = "deleteLater"

type candidate struct {
	method *meta.Method
	score  int
}

// InvokeMethod calls a method of obj with wire arguments and returns its
// native result, or nil for methods without one. method is either an index
// or a name. A name containing "(" selects the method with that exact
// signature; a plain name picks the best matching overload.
//
// Arguments that fail to convert are logged and replaced by zero values.
func (p *Publisher) InvokeMethod(obj meta.Object, method any, args []any) (any, error) {
	typ, ok := p.typeOf(obj)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNoMetaType, obj)
	}

	var m *meta.Method
	switch name := method.(type) {
	case string:
		if strings.Contains(name, "(") {
			if m = typ.MethodBySignature(name); m == nil {
				return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, typ.Name(), name)
			}
			break
		}
		var err error
		if m, err = p.resolveOverload(typ, name, args); err != nil {
			return nil, err
		}
	default:
		index, ok := wire.Int(method)
		if !ok {
			return nil, fmt.Errorf("%w: invalid method reference %v", ErrUnknownMethod, method)
		}
		if m = typ.Method(int(index)); m == nil {
			return nil, fmt.Errorf("%w: %s has no method %d", ErrUnknownMethod, typ.Name(), index)
		}
	}

	if m.Name == deleteLaterName && len(m.Params) == 0 {
		return nil, p.deleteWrapped(obj)
	}
	if m.IsSignal() || !m.IsPublic() || m.Invoke == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotInvokable, typ.Name(), m.Signature())
	}
	if len(args) > len(m.Params) {
		p.warnLog("publisher: ignoring additional arguments",
			"method", m.Signature(), "expected", len(m.Params), "got", len(args))
	}

	result, err := m.Invoke(obj, p.convertArgs(m, args))
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", typ.Name(), m.Signature(), err)
	}
	if m.Return.Kind == meta.KindVoid {
		return nil, nil
	}
	return result, nil
}

// resolveOverload picks the public method named name whose parameters match
// args best. Candidates with an inconvertible argument are dropped; equal
// scores keep declaration order.
func (p *Publisher) resolveOverload(typ *meta.Type, name string, args []any) (*meta.Method, error) {
	named := typ.MethodsNamed(name)
	if len(named) == 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, typ.Name(), name)
	}

	var candidates []candidate
	for _, m := range named {
		if !m.IsPublic() || len(m.Params) != len(args) {
			continue
		}
		score, ok := p.matchScore(m, args)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{method: m, score: score})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s.%s with %d arguments", ErrNoMatch, typ.Name(), name, len(args))
	}

	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(a.score, b.score)
	})
	if len(candidates) > 1 && candidates[0].score == candidates[1].score {
		p.warnLog("publisher: ambiguous overload, using the first declared",
			"method", candidates[0].method.Signature(),
			"other", candidates[1].method.Signature(),
			"error", ErrAmbiguous)
	}
	return candidates[0].method, nil
}

func (p *Publisher) matchScore(m *meta.Method, args []any) (int, bool) {
	total := 0
	for i, param := range m.Params {
		s := p.conversionScore(args[i], param)
		if s >= scoreIncompatible {
			return 0, false
		}
		total += s
	}
	return total, true
}

// conversionScore rates how well a wire value fits a parameter.
func (p *Publisher) conversionScore(value any, param meta.Param) int {
	switch param.Kind {
	case meta.KindVariant:
		return scoreVariant
	case meta.KindList:
		if _, ok := value.([]any); ok {
			return scorePerfect
		}
		return scoreIncompatible
	case meta.KindMap:
		if _, ok := value.(map[string]any); ok {
			return scorePerfect
		}
		return scoreIncompatible
	case meta.KindObject:
		if value == nil {
			return scorePerfect
		}
		if _, err := p.resolveObjectArg(value, param); err != nil {
			return scoreIncompatible
		}
		return scorePerfect
	case meta.KindVoid, meta.KindFuture, meta.KindInvalid:
		return scoreIncompatible
	}

	if wire.IsNumber(value) && param.Kind.IsNumeric() {
		return scoreNumberBase + param.Kind.Granularity()
	}
	switch value.(type) {
	case string:
		if param.Kind == meta.KindString {
			return scorePerfect
		}
	case bool:
		if param.Kind == meta.KindBool {
			return scorePerfect
		}
	}
	if p.conv.CanConvert(value, param) {
		return scoreGeneric
	}
	return scoreIncompatible
}

// convertArgs converts wire arguments to the native types m declares.
// Missing arguments and failed conversions become zero values.
func (p *Publisher) convertArgs(m *meta.Method, args []any) []any {
	out := make([]any, len(m.Params))
	for i, param := range m.Params {
		if i >= len(args) {
			out[i] = convert.Zero(param)
			continue
		}
		v, err := p.convertArg(args[i], param)
		if err != nil {
			p.warnLog("publisher: cannot convert argument",
				"method", m.Signature(), "index", i, "type", param.TypeName(), "error", err)
			v = convert.Zero(param)
		}
		out[i] = v
	}
	return out
}

func (p *Publisher) convertArg(value any, param meta.Param) (any, error) {
	if param.Kind != meta.KindObject {
		return p.conv.FromWire(value, param)
	}
	if value == nil {
		return nil, nil
	}
	return p.resolveObjectArg(value, param)
}

// resolveObjectArg maps an object reference to the published object it names.
func (p *Publisher) resolveObjectArg(value any, param meta.Param) (meta.Object, error) {
	id, ok := wire.ObjectRefID(value)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not an object reference", convert.ErrConversion, value)
	}
	obj, ok := p.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownObject, id)
	}
	if param.ObjectType != nil {
		typ, ok := p.typeOf(obj)
		if !ok || !typ.Inherits(param.ObjectType) {
			return nil, fmt.Errorf("%w: %q is not a %s", convert.ErrConversion, id, param.ObjectType.Name())
		}
	}
	return obj, nil
}

// deleteWrapped schedules the destruction of a wrapped object on its loop.
// Registered objects belong to the application and are never destroyed remotely.
func (p *Publisher) deleteWrapped(obj meta.Object) error {
	if !p.IsWrapped(obj) {
		return fmt.Errorf("%w: refusing remote deletion", ErrNotWrapped)
	}
	l := obj.Loop()
	if l == nil {
		l = p.loop
	}
	l.Post(obj.Destroy)
	return nil
}

func (p *Publisher) respond(id any, data any, t transport.Transport) {
	p.sender.Send(wire.NewResponse(id, data), t)
}

// respondLater answers request id once f completes. The continuation holds
// the publisher weakly and the transport by id only, so a closed publisher
// or a disconnected transport turns it into a no-op.
func (p *Publisher) respondLater(f *meta.Future, id any, t transport.Transport) {
	if f.Done() {
		value, ok := f.Result()
		p.respondFuture(value, ok, id, t)
		return
	}

	self := weak.Make(p)
	transportID := t.ID()
	l := p.loop
	f.Then(func(value any, ok bool) {
		l.Post(func() {
			pub := self.Value()
			if pub == nil || pub.closed {
				return
			}
			t, connected := pub.sender.Transport(transportID)
			if !connected {
				pub.debugLog("publisher: dropping deferred response, transport gone", "transport", transportID)
				return
			}
			pub.respondFuture(value, ok, id, t)
		})
	})
}

func (p *Publisher) respondFuture(value any, ok bool, id any, t transport.Transport) {
	var data any
	if ok {
		data = p.WrapResult(value, t, "")
	}
	p.respond(id, data, t)
}
