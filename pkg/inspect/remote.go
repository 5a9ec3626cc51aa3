package inspect

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mash-protocol/webchannel-go/pkg/meta"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// ErrMalformedClassInfo is returned for class info that does not have the
// shape sent in Init responses.
var ErrMalformedClassInfo = errors.New("malformed class info")

// DecodeInit turns the data of an Init response into object descriptions,
// sorted by id. Remote descriptions carry no type names or method return
// types; property values are wire values.
func DecodeInit(data any) ([]*ObjectInfo, error) {
	objects, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: init data is %T", ErrMalformedClassInfo, data)
	}
	out := make([]*ObjectInfo, 0, len(objects))
	for id, raw := range objects {
		info, err := DecodeClassInfo(id, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

// DecodeClassInfo turns one class info map into an object description.
func DecodeClassInfo(id string, raw any) (*ObjectInfo, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrMalformedClassInfo, id, raw)
	}
	info := &ObjectInfo{ID: id, Type: "remote"}

	props, _ := m[wire.KeyProperties].([]any)
	for _, entry := range props {
		e, ok := entry.([]any)
		if !ok || len(e) < 4 {
			return nil, fmt.Errorf("%w: %s property entry %v", ErrMalformedClassInfo, id, entry)
		}
		index, _ := wire.Int(e[0])
		name, _ := e[1].(string)
		pi := PropertyInfo{Index: int(index), Name: name, Value: e[3], Writable: true}
		if change, ok := e[2].([]any); ok && len(change) == 2 {
			if sig, ok := change[0].(string); ok {
				pi.Notify = sig
			} else {
				pi.Notify = name + "Changed"
			}
		} else {
			pi.Constant = true
			pi.Writable = false
		}
		info.Properties = append(info.Properties, pi)
	}

	methods, _ := m[wire.KeyMethods].([]any)
	for _, entry := range methods {
		name, index, err := decodePair(id, entry)
		if err != nil {
			return nil, err
		}
		// Plain names alias their first overload; signatures are listed too.
		if strings.Contains(name, "(") {
			info.Methods = append(info.Methods, MethodInfo{Index: index, Signature: name})
		}
	}

	signals, _ := m[wire.KeySignals].([]any)
	for _, entry := range signals {
		name, index, err := decodePair(id, entry)
		if err != nil {
			return nil, err
		}
		info.Signals = append(info.Signals, MethodInfo{Index: index, Signature: name})
	}

	enums, _ := m[wire.KeyEnums].(map[string]any)
	names := make([]string, 0, len(enums))
	for name := range enums {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		members, _ := enums[name].(map[string]any)
		ei := EnumInfo{Name: name}
		for member, v := range members {
			n, _ := wire.Int(v)
			ei.Members = append(ei.Members, meta.EnumMember{Name: member, Value: int(n)})
		}
		sort.Slice(ei.Members, func(a, b int) bool { return ei.Members[a].Value < ei.Members[b].Value })
		info.Enums = append(info.Enums, ei)
	}
	return info, nil
}

func decodePair(id string, entry any) (string, int, error) {
	e, ok := entry.([]any)
	if !ok || len(e) != 2 {
		return "", 0, fmt.Errorf("%w: %s member entry %v", ErrMalformedClassInfo, id, entry)
	}
	name, ok := e[0].(string)
	index, iok := wire.Int(e[1])
	if !ok || !iok {
		return "", 0, fmt.Errorf("%w: %s member entry %v", ErrMalformedClassInfo, id, entry)
	}
	return name, int(index), nil
}
