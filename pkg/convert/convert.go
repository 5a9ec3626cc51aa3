package convert

import (
	"encoding"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/mash-protocol/webchannel-go/pkg/meta"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// ErrConversion is returned when a value cannot be represented in the target type.
var ErrConversion = errors.New("conversion failed")

// Custom converts one native Go type to and from wire values.
type Custom struct {
	ToWire   func(native any) (any, error)
	FromWire func(value any) (any, error)
}

// ObjectFunc turns a published object found inside a value into its wire form.
type ObjectFunc func(obj meta.Object) any

// Converter converts between native values and wire values.
// It is safe for concurrent use.
type Converter struct {
	mu     sync.RWMutex
	custom map[reflect.Type]Custom
}

// New creates a converter with no custom converters.
func New() *Converter {
	return &Converter{custom: make(map[reflect.Type]Custom)}
}

// Register installs a custom converter for t, replacing any previous one.
func (c *Converter) Register(t reflect.Type, cc Custom) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.custom[t] = cc
}

// HasCustom returns true if t has a custom converter.
func (c *Converter) HasCustom(t reflect.Type) bool {
	_, ok := c.lookup(t)
	return ok
}

func (c *Converter) lookup(t reflect.Type) (Custom, bool) {
	if c == nil || t == nil {
		return Custom{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	cc, ok := c.custom[t]
	return cc, ok
}

var (
	objectType        = reflect.TypeFor[meta.Object]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
)

// ToWire converts a native value to a wire value. Objects are handed to
// wrap; with a nil wrap they are an error.
func (c *Converter) ToWire(v any, wrap ObjectFunc) (any, error) {
	if v == nil {
		return nil, nil
	}
	if cc, ok := c.lookup(reflect.TypeOf(v)); ok && cc.ToWire != nil {
		return cc.ToWire(v)
	}

	switch x := v.(type) {
	case meta.Object:
		if wrap == nil {
			return nil, fmt.Errorf("%w: object %T outside of a publisher", ErrConversion, v)
		}
		return wrap(x), nil
	case bool, string, float64:
		return x, nil
	case []byte:
		return base64.StdEncoding.EncodeToString(x), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case time.Duration:
		return float64(x.Milliseconds()), nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			w, err := c.ToWire(e, wrap)
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			w, err := c.ToWire(e, wrap)
			if err != nil {
				return nil, err
			}
			out[k] = w
		}
		return out, nil
	}

	if f, ok := wire.Float(v); ok {
		return f, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().Implements(textMarshalerType) {
		text, err := v.(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConversion, err)
		}
		return string(text), nil
	}
	return c.reflectToWire(rv, wrap)
}

func (c *Converter) reflectToWire(rv reflect.Value, wrap ObjectFunc) (any, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return c.ToWire(rv.Elem().Interface(), wrap)
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}, nil
		}
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			w, err := c.ToWire(rv.Index(i).Interface(), wrap)
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map key %s is not a string", ErrConversion, rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			w, err := c.ToWire(iter.Value().Interface(), wrap)
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = w
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: no wire form for %s", ErrConversion, rv.Type())
}

// FromWire converts a wire value to the native type of p. Object
// parameters are resolved by the publisher and are rejected here.
// A null wire value converts to the zero value of any kind.
func (c *Converter) FromWire(value any, p meta.Param) (any, error) {
	if p.Kind == meta.KindCustom {
		cc, ok := c.lookup(p.GoType)
		if !ok || cc.FromWire == nil {
			return nil, fmt.Errorf("%w: no converter for %v", ErrConversion, p.GoType)
		}
		return cc.FromWire(value)
	}
	if value == nil {
		return Zero(p), nil
	}

	switch p.Kind {
	case meta.KindVoid:
		return nil, nil
	case meta.KindVariant:
		return value, nil
	case meta.KindBool:
		return toBool(value)
	case meta.KindString:
		return toString(value)
	case meta.KindFloat32:
		f, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %v overflows float32", ErrConversion, f)
		}
		return float32(f), nil
	case meta.KindFloat64:
		return toFloat(value)
	case meta.KindList:
		if l, ok := value.([]any); ok {
			return l, nil
		}
		return nil, fmt.Errorf("%w: %T is not a list", ErrConversion, value)
	case meta.KindMap:
		if m, ok := value.(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("%w: %T is not a map", ErrConversion, value)
	case meta.KindObject, meta.KindFuture:
		return nil, fmt.Errorf("%w: %s arguments are not convertible", ErrConversion, p.Kind)
	}

	if p.Kind.IsInteger() {
		return toInteger(value, p.Kind)
	}
	return nil, fmt.Errorf("%w: unsupported kind %s", ErrConversion, p.Kind)
}

// CanConvert returns true if value converts to the type of p without error.
func (c *Converter) CanConvert(value any, p meta.Param) bool {
	_, err := c.FromWire(value, p)
	return err == nil
}

// Zero returns the default-constructed native value for p.
func Zero(p meta.Param) any {
	switch p.Kind {
	case meta.KindVoid, meta.KindVariant, meta.KindObject, meta.KindFuture, meta.KindInvalid:
		return nil
	case meta.KindList:
		return []any{}
	case meta.KindMap:
		return map[string]any{}
	case meta.KindCustom:
		if p.GoType == nil {
			return nil
		}
		return reflect.Zero(p.GoType).Interface()
	}
	return reflect.Zero(p.Kind.GoType()).Interface()
}

// IsObjectType returns true if t is a Go type that implements meta.Object.
func IsObjectType(t reflect.Type) bool {
	return t != nil && t.Implements(objectType)
}

// DecodeBytes is the inverse of the []byte wire form.
func DecodeBytes(value any) ([]byte, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a string", ErrConversion, value)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversion, err)
	}
	return b, nil
}

func toBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a bool", ErrConversion, v)
		}
		return b, nil
	}
	if f, ok := wire.Float(value); ok {
		return f != 0, nil
	}
	return nil, fmt.Errorf("%w: %T is not a bool", ErrConversion, value)
}

func toString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	if n, ok := wire.Int(value); ok {
		return strconv.FormatInt(n, 10), nil
	}
	if f, ok := wire.Float(value); ok {
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	return nil, fmt.Errorf("%w: %T is not a string", ErrConversion, value)
}

func toFloat(value any) (float64, error) {
	if f, ok := wire.Float(value); ok {
		return f, nil
	}
	switch v := value.(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrConversion, v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: %T is not a number", ErrConversion, value)
}

// toInteger rounds to the nearest integer and range-checks against kind.
func toInteger(value any, kind meta.Kind) (any, error) {
	target := reflect.New(kind.GoType()).Elem()

	if kind.IsUnsigned() {
		var u uint64
		switch v := value.(type) {
		case uint64:
			u = v
		case string:
			parsed, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not an unsigned integer", ErrConversion, v)
			}
			u = parsed
		default:
			f, err := toFloat(value)
			if err != nil {
				return nil, err
			}
			f = math.Round(f)
			if f < 0 || f >= math.MaxUint64 || math.IsNaN(f) {
				return nil, fmt.Errorf("%w: %v out of range for %s", ErrConversion, value, kind)
			}
			u = uint64(f)
		}
		if target.OverflowUint(u) {
			return nil, fmt.Errorf("%w: %v out of range for %s", ErrConversion, value, kind)
		}
		target.SetUint(u)
		return target.Interface(), nil
	}

	var n int64
	switch v := value.(type) {
	case int64:
		n = v
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %v out of range for %s", ErrConversion, value, kind)
		}
		n = int64(v)
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrConversion, v)
		}
		n = parsed
	default:
		f, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		f = math.Round(f)
		if f < math.MinInt64 || f >= math.MaxInt64 || math.IsNaN(f) {
			return nil, fmt.Errorf("%w: %v out of range for %s", ErrConversion, value, kind)
		}
		n = int64(f)
	}
	if target.OverflowInt(n) {
		return nil, fmt.Errorf("%w: %v out of range for %s", ErrConversion, value, kind)
	}
	target.SetInt(n)
	return target.Interface(), nil
}
