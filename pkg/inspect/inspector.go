package inspect

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mash-protocol/webchannel-go/pkg/meta"
)

// Inspector errors.
var (
	ErrObjectNotFound   = errors.New("object not found")
	ErrNoType           = errors.New("object has no type information")
	ErrPropertyNotFound = errors.New("property not found")
	ErrMethodNotFound   = errors.New("method not found")
	ErrPartialPath      = errors.New("path does not name a member")
)

// Source is the view of published objects an Inspector works on.
// *publisher.Publisher implements it.
type Source interface {
	Lookup(id string) (meta.Object, bool)
	RegisteredObjects() map[string]meta.Object
	IsWrapped(obj meta.Object) bool
	TypeOf(obj meta.Object) (*meta.Type, bool)
	SetProperty(obj meta.Object, index int, value any) error
	InvokeMethod(obj meta.Object, method any, args []any) (any, error)
}

// Inspector reads and manipulates published objects. Like the objects
// themselves it must only be used on the publisher's loop.
type Inspector struct {
	src Source
}

// NewInspector creates a new Inspector over src.
func NewInspector(src Source) *Inspector {
	return &Inspector{src: src}
}

// ObjectInfo describes one object for display.
type ObjectInfo struct {
	ID         string
	Type       string
	Wrapped    bool
	Properties []PropertyInfo
	Methods    []MethodInfo
	Signals    []MethodInfo
	Enums      []EnumInfo
}

// PropertyInfo describes one property and its current value.
type PropertyInfo struct {
	Index    int
	Name     string
	Type     string
	Value    any
	Writable bool
	Constant bool
	Notify   string
}

// MethodInfo describes a method or signal.
type MethodInfo struct {
	Index     int
	Signature string
	Return    string
}

// EnumInfo describes an enum and its members.
type EnumInfo struct {
	Name    string
	Members []meta.EnumMember
}

// Objects returns the ids of all registered objects, sorted.
func (i *Inspector) Objects() []string {
	objects := i.src.RegisteredObjects()
	ids := make([]string, 0, len(objects))
	for id := range objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (i *Inspector) resolve(id string) (meta.Object, *meta.Type, error) {
	obj, ok := i.src.Lookup(id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	typ, ok := i.src.TypeOf(obj)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoType, id)
	}
	return obj, typ, nil
}

// InspectObject returns the structure and property values of an object.
func (i *Inspector) InspectObject(id string) (*ObjectInfo, error) {
	obj, typ, err := i.resolve(id)
	if err != nil {
		return nil, err
	}

	info := &ObjectInfo{ID: id, Type: typ.Name(), Wrapped: i.src.IsWrapped(obj)}
	for _, prop := range typ.Properties() {
		pi := PropertyInfo{
			Index:    prop.Index,
			Name:     prop.Name,
			Type:     prop.Type.TypeName(),
			Writable: prop.Writable(),
			Constant: prop.Constant,
		}
		if prop.Read != nil {
			pi.Value = prop.Read(obj)
		}
		if prop.HasNotify() {
			pi.Notify = typ.Method(prop.Notify).Name
		}
		info.Properties = append(info.Properties, pi)
	}
	for _, m := range typ.Methods() {
		if !m.IsPublic() {
			continue
		}
		mi := MethodInfo{Index: m.Index, Signature: m.Signature()}
		if m.IsSignal() {
			info.Signals = append(info.Signals, mi)
			continue
		}
		if m.Return.Kind != meta.KindVoid {
			mi.Return = m.Return.TypeName()
		}
		info.Methods = append(info.Methods, mi)
	}
	for _, e := range typ.Enums() {
		info.Enums = append(info.Enums, EnumInfo{Name: e.Name, Members: e.Members})
	}
	return info, nil
}

// ReadProperty returns the current value of the property at path.
func (i *Inspector) ReadProperty(path *Path) (any, error) {
	obj, prop, err := i.property(path)
	if err != nil {
		return nil, err
	}
	if prop.Read == nil {
		return nil, nil
	}
	return prop.Read(obj), nil
}

// WriteProperty converts value to the property type and stores it.
// Published clients see the change with the next property update.
func (i *Inspector) WriteProperty(path *Path, value any) error {
	obj, prop, err := i.property(path)
	if err != nil {
		return err
	}
	return i.src.SetProperty(obj, prop.Index, value)
}

func (i *Inspector) property(path *Path) (meta.Object, *meta.Property, error) {
	if path.IsPartial {
		return nil, nil, ErrPartialPath
	}
	obj, typ, err := i.resolve(path.Object)
	if err != nil {
		return nil, nil, err
	}
	prop, ok := ResolveProperty(typ, path)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, path)
	}
	return obj, prop, nil
}

// Invoke calls the method at path with wire arguments and returns its
// native result.
func (i *Inspector) Invoke(path *Path, args []any) (any, error) {
	if path.IsPartial {
		return nil, ErrPartialPath
	}
	obj, typ, err := i.resolve(path.Object)
	if err != nil {
		return nil, err
	}
	method, ok := ResolveMethod(typ, path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, path)
	}
	return i.src.InvokeMethod(obj, method, args)
}
