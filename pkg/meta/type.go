package meta

import (
	"errors"
	"fmt"
	"strings"
)

// Descriptor errors.
var (
	ErrNotifySignal    = errors.New("unknown notify signal")
	ErrDuplicateMember = errors.New("duplicate member")
	ErrNotWritable     = errors.New("property is not writable")
	ErrNoInvoker       = errors.New("method has no invoker")
)

// Members every type inherits from ObjectType.
const (
	PropertyObjectName      = 0
	SignalDestroyed         = 0
	SignalObjectNameChanged = 1
	MethodDeleteLater       = 2
)

// MethodKind distinguishes invokable methods from signals.
type MethodKind uint8

const (
	MethodKindMethod MethodKind = iota
	MethodKindSignal
)

// String returns the method kind name.
func (k MethodKind) String() string {
	switch k {
	case MethodKindMethod:
		return "METHOD"
	case MethodKindSignal:
		return "SIGNAL"
	default:
		return "UNKNOWN"
	}
}

// Access is the visibility of a method. Only public methods are remotely invokable.
type Access uint8

const (
	AccessPublic Access = iota
	AccessProtected
	AccessPrivate
)

// String returns the access name.
func (a Access) String() string {
	switch a {
	case AccessPublic:
		return "PUBLIC"
	case AccessProtected:
		return "PROTECTED"
	case AccessPrivate:
		return "PRIVATE"
	default:
		return "UNKNOWN"
	}
}

// ReadFunc returns the current native value of a property.
type ReadFunc func(obj Object) any

// WriteFunc stores a native value into a property.
type WriteFunc func(obj Object, value any) error

// InvokeFunc calls a method with arguments already converted to their
// declared native types.
type InvokeFunc func(obj Object, args []any) (any, error)

// Property describes one property of a type.
type Property struct {
	Index    int
	Name     string
	Type     Param
	Notify   int // signal index, -1 if the property has no change signal
	Constant bool
	Read     ReadFunc
	Write    WriteFunc
}

// HasNotify returns true if the property has a change signal.
func (p *Property) HasNotify() bool { return p.Notify >= 0 }

// Writable returns true if the property accepts writes.
func (p *Property) Writable() bool { return p.Write != nil && !p.Constant }

// Method describes a method or signal. Both share the type's method index space.
type Method struct {
	Index  int
	Name   string
	Kind   MethodKind
	Access Access
	Params []Param
	Return Param
	Invoke InvokeFunc
}

// IsSignal returns true for signals.
func (m *Method) IsSignal() bool { return m.Kind == MethodKindSignal }

// IsPublic returns true if the method is public.
func (m *Method) IsPublic() bool { return m.Access == AccessPublic }

// Signature returns the normalized signature, e.g. "setRange(int32,int32)".
func (m *Method) Signature() string {
	names := make([]string, len(m.Params))
	for i, p := range m.Params {
		names[i] = p.TypeName()
	}
	return m.Name + "(" + strings.Join(names, ",") + ")"
}

// EnumMember is a named enum value.
type EnumMember struct {
	Name  string
	Value int
}

// Enum describes an enumeration published with a type.
type Enum struct {
	Name    string
	Members []EnumMember
}

// Type is the descriptor table of one native object type.
// A Type is immutable once built and safe for concurrent reads.
type Type struct {
	name       string
	parent     *Type
	properties []*Property
	methods    []*Method
	enums      []*Enum
}

// Name returns the type name.
func (t *Type) Name() string { return t.name }

// Parent returns the type this one derives from, nil for ObjectType.
func (t *Type) Parent() *Type { return t.parent }

// Properties returns all properties in index order. The slice must not be modified.
func (t *Type) Properties() []*Property { return t.properties }

// Methods returns all methods and signals in index order. The slice must not be modified.
func (t *Type) Methods() []*Method { return t.methods }

// Enums returns the enums declared by this type and its parents.
func (t *Type) Enums() []*Enum { return t.enums }

// Property returns the property at index i, or nil.
func (t *Type) Property(i int) *Property {
	if i < 0 || i >= len(t.properties) {
		return nil
	}
	return t.properties[i]
}

// PropertyByName returns the named property, or nil.
func (t *Type) PropertyByName(name string) *Property {
	for _, p := range t.properties {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Method returns the method or signal at index i, or nil.
func (t *Type) Method(i int) *Method {
	if i < 0 || i >= len(t.methods) {
		return nil
	}
	return t.methods[i]
}

// MethodsNamed returns the non-signal methods with the given name in declaration order.
func (t *Type) MethodsNamed(name string) []*Method {
	var out []*Method
	for _, m := range t.methods {
		if !m.IsSignal() && m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// MethodBySignature returns the non-signal method with the given signature, or nil.
func (t *Type) MethodBySignature(sig string) *Method {
	for _, m := range t.methods {
		if !m.IsSignal() && m.Signature() == sig {
			return m
		}
	}
	return nil
}

// Signal returns the signal at index i, or nil if i is not a signal.
func (t *Type) Signal(i int) *Method {
	m := t.Method(i)
	if m == nil || !m.IsSignal() {
		return nil
	}
	return m
}

// SignalIndex returns the index of the first signal with the given name, or -1.
func (t *Type) SignalIndex(name string) int {
	for _, m := range t.methods {
		if m.IsSignal() && m.Name == name {
			return m.Index
		}
	}
	return -1
}

// MustSignal is SignalIndex but panics on unknown names. Intended for
// package-level index variables of types built at init.
func (t *Type) MustSignal(name string) int {
	i := t.SignalIndex(name)
	if i < 0 {
		panic(fmt.Sprintf("meta: type %s has no signal %q", t.name, name))
	}
	return i
}

// NotifyProperties returns the properties whose change signal is signal.
func (t *Type) NotifyProperties(signal int) []*Property {
	var out []*Property
	for _, p := range t.properties {
		if p.Notify == signal {
			out = append(out, p)
		}
	}
	return out
}

// IsNotifySignal returns true if signal is the change signal of any property.
func (t *Type) IsNotifySignal(signal int) bool {
	for _, p := range t.properties {
		if p.Notify == signal {
			return true
		}
	}
	return false
}

// Inherits returns true if t is other or derives from it.
func (t *Type) Inherits(other *Type) bool {
	for c := t; c != nil; c = c.parent {
		if c == other {
			return true
		}
	}
	return false
}

// String returns the type name.
func (t *Type) String() string { return t.name }

// TypeBuilder assembles a Type. Errors are collected and reported by Build.
type TypeBuilder struct {
	t    *Type
	errs []error
}

// NewType starts a type derived from parent. A nil parent means ObjectType.
func NewType(name string, parent *Type) *TypeBuilder {
	if parent == nil {
		parent = ObjectType
	}
	return newTypeBuilder(name, parent)
}

func newTypeBuilder(name string, parent *Type) *TypeBuilder {
	t := &Type{name: name, parent: parent}
	if parent != nil {
		t.properties = append(t.properties, parent.properties...)
		t.methods = append(t.methods, parent.methods...)
		t.enums = append(t.enums, parent.enums...)
	}
	return &TypeBuilder{t: t}
}

// Type returns the type under construction, for self-referencing params.
func (b *TypeBuilder) Type() *Type { return b.t }

// Signal adds a signal.
func (b *TypeBuilder) Signal(name string, args ...Param) *TypeBuilder {
	return b.add(&Method{Name: name, Kind: MethodKindSignal, Access: AccessPublic, Params: args})
}

// Method adds a public method returning ret. Use P("", KindVoid) for no result.
func (b *TypeBuilder) Method(name string, ret Param, fn InvokeFunc, params ...Param) *TypeBuilder {
	return b.add(&Method{Name: name, Kind: MethodKindMethod, Access: AccessPublic, Params: params, Return: ret, Invoke: fn})
}

// PrivateMethod adds a method that is described nowhere and cannot be invoked remotely.
func (b *TypeBuilder) PrivateMethod(name string, fn InvokeFunc, params ...Param) *TypeBuilder {
	return b.add(&Method{Name: name, Kind: MethodKindMethod, Access: AccessPrivate, Params: params, Return: P("", KindVoid), Invoke: fn})
}

func (b *TypeBuilder) add(m *Method) *TypeBuilder {
	sig := m.Signature()
	for _, existing := range b.t.methods {
		if existing.Kind == m.Kind && existing.Signature() == sig {
			b.errs = append(b.errs, fmt.Errorf("%w: %s.%s", ErrDuplicateMember, b.t.name, sig))
			return b
		}
	}
	if m.Return.Kind == KindInvalid {
		m.Return.Kind = KindVoid
	}
	m.Index = len(b.t.methods)
	b.t.methods = append(b.t.methods, m)
	return b
}

// Property adds a property. notify names an already declared signal, or is
// empty for a property without change notification. A nil write makes the
// property read-only.
func (b *TypeBuilder) Property(name string, typ Param, notify string, read ReadFunc, write WriteFunc) *TypeBuilder {
	return b.property(name, typ, notify, false, read, write)
}

// ConstantProperty adds a read-only property that never changes.
func (b *TypeBuilder) ConstantProperty(name string, typ Param, read ReadFunc) *TypeBuilder {
	return b.property(name, typ, "", true, read, nil)
}

func (b *TypeBuilder) property(name string, typ Param, notify string, constant bool, read ReadFunc, write WriteFunc) *TypeBuilder {
	if b.t.PropertyByName(name) != nil {
		b.errs = append(b.errs, fmt.Errorf("%w: %s.%s", ErrDuplicateMember, b.t.name, name))
		return b
	}
	p := &Property{
		Index:    len(b.t.properties),
		Name:     name,
		Type:     typ,
		Notify:   -1,
		Constant: constant,
		Read:     read,
		Write:    write,
	}
	if typ.Name == "" {
		p.Type.Name = name
	}
	if notify != "" {
		p.Notify = b.t.SignalIndex(notify)
		if p.Notify < 0 {
			b.errs = append(b.errs, fmt.Errorf("%w: %s.%s notifies %q", ErrNotifySignal, b.t.name, name, notify))
			return b
		}
	}
	b.t.properties = append(b.t.properties, p)
	return b
}

// Enum adds an enum.
func (b *TypeBuilder) Enum(name string, members ...EnumMember) *TypeBuilder {
	b.t.enums = append(b.t.enums, &Enum{Name: name, Members: members})
	return b
}

// Build returns the finished type.
func (b *TypeBuilder) Build() (*Type, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	return b.t, nil
}

// MustBuild is Build but panics on error.
func (b *TypeBuilder) MustBuild() *Type {
	t, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("meta: %v", err))
	}
	return t
}

// ObjectType is the root type. Every type inherits its objectName property,
// its destroyed and objectNameChanged signals and its deleteLater method.
var ObjectType = newTypeBuilder("Object", nil).
	Signal("destroyed").
	Signal("objectNameChanged", P("objectName", KindString)).
	Method("deleteLater", P("", KindVoid), func(obj Object, _ []any) (any, error) {
		DeleteLater(obj)
		return nil, nil
	}).
	Property("objectName", P("objectName", KindString), "objectNameChanged",
		func(obj Object) any { return obj.ObjectName() },
		func(obj Object, v any) error {
			s, _ := v.(string)
			obj.SetObjectName(s)
			return nil
		}).
	MustBuild()
