package meta

import "reflect"

// Kind is the native type class of a property, parameter or return value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindVoid
	KindBool
	KindInt
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindList
	KindMap
	KindVariant
	KindObject
	KindFuture
	KindCustom
)

var kindNames = []string{
	"invalid", "void", "bool", "int", "int8", "int16", "int32", "int64",
	"uint", "uint8", "uint16", "uint32", "uint64", "float32", "float64",
	"string", "list", "map", "variant", "object", "future", "custom",
}

// String returns the kind name as used in method signatures.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsNumeric returns true for integer, floating point and bool kinds.
// Bool counts as numeric because wire numbers convert to it.
func (k Kind) IsNumeric() bool {
	return k >= KindBool && k <= KindFloat64
}

// IsInteger returns true for signed and unsigned integer kinds.
func (k Kind) IsInteger() bool {
	return k >= KindInt && k <= KindUint64
}

// IsUnsigned returns true for unsigned integer kinds.
func (k Kind) IsUnsigned() bool {
	return k >= KindUint && k <= KindUint64
}

// Granularity orders numeric kinds from the most to the least precise.
// Float64 is 0 and bool is 7; non-numeric kinds return -1.
func (k Kind) Granularity() int {
	switch k {
	case KindFloat64:
		return 0
	case KindFloat32:
		return 1
	case KindInt64, KindUint64:
		return 2
	case KindInt, KindUint:
		return 3
	case KindInt32, KindUint32:
		return 4
	case KindInt16, KindUint16:
		return 5
	case KindInt8, KindUint8:
		return 6
	case KindBool:
		return 7
	default:
		return -1
	}
}

// GoType returns the native Go type used for values of kind k.
// Custom and Object kinds have no fixed type and return nil.
func (k Kind) GoType() reflect.Type {
	switch k {
	case KindBool:
		return reflect.TypeFor[bool]()
	case KindInt:
		return reflect.TypeFor[int]()
	case KindInt8:
		return reflect.TypeFor[int8]()
	case KindInt16:
		return reflect.TypeFor[int16]()
	case KindInt32:
		return reflect.TypeFor[int32]()
	case KindInt64:
		return reflect.TypeFor[int64]()
	case KindUint:
		return reflect.TypeFor[uint]()
	case KindUint8:
		return reflect.TypeFor[uint8]()
	case KindUint16:
		return reflect.TypeFor[uint16]()
	case KindUint32:
		return reflect.TypeFor[uint32]()
	case KindUint64:
		return reflect.TypeFor[uint64]()
	case KindFloat32:
		return reflect.TypeFor[float32]()
	case KindFloat64:
		return reflect.TypeFor[float64]()
	case KindString:
		return reflect.TypeFor[string]()
	case KindList:
		return reflect.TypeFor[[]any]()
	case KindMap:
		return reflect.TypeFor[map[string]any]()
	case KindVariant:
		return reflect.TypeFor[any]()
	case KindFuture:
		return reflect.TypeFor[*Future]()
	default:
		return nil
	}
}

// Param describes one typed slot: a method parameter, a signal argument,
// a property type or a method's return type.
type Param struct {
	Name string
	Kind Kind

	// GoType is the native type of a KindCustom value.
	GoType reflect.Type

	// ObjectType restricts a KindObject slot to objects of this type or its
	// descendants. Nil accepts any object.
	ObjectType *Type
}

// P is shorthand for an untyped-object, non-custom Param.
func P(name string, kind Kind) Param {
	return Param{Name: name, Kind: kind}
}

// TypeName returns the name used for the slot in method signatures.
func (p Param) TypeName() string {
	switch p.Kind {
	case KindCustom:
		if p.GoType != nil {
			return p.GoType.String()
		}
	case KindObject:
		if p.ObjectType != nil {
			return p.ObjectType.Name() + "*"
		}
		return "object*"
	}
	return p.Kind.String()
}
