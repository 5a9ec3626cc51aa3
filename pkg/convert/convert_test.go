package convert

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mash-protocol/webchannel-go/pkg/meta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type celsius float64

type point struct{ X, Y int }

type node struct{ meta.Base }

func TestToWireBuiltins(t *testing.T) {
	c := New()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"int32", int32(-4), -4.0},
		{"uint8", uint8(200), 200.0},
		{"named float", celsius(21.5), 21.5},
		{"string", "x", "x"},
		{"bytes", []byte("hi"), "aGk="},
		{"time", ts, "2024-05-01T12:00:00Z"},
		{"duration", 1500 * time.Millisecond, 1500.0},
		{"typed slice", []int{1, 2}, []any{1.0, 2.0}},
		{"nil slice", []string(nil), []any{}},
		{"array", [2]bool{true, false}, []any{true, false}},
		{"typed map", map[string]int{"a": 1}, map[string]any{"a": 1.0}},
		{"nested", []any{map[string]any{"k": []int{3}}}, []any{map[string]any{"k": []any{3.0}}}},
		{"nil pointer", (*int)(nil), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ToWire(tt.in, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToWireUnsupported(t *testing.T) {
	c := New()
	_, err := c.ToWire(point{1, 2}, nil)
	assert.ErrorIs(t, err, ErrConversion)

	_, err = c.ToWire(map[int]string{1: "a"}, nil)
	assert.ErrorIs(t, err, ErrConversion)

	_, err = c.ToWire(&node{}, nil)
	assert.ErrorIs(t, err, ErrConversion, "objects need a wrap function")
}

func TestToWireObjectsUseWrap(t *testing.T) {
	c := New()
	n := &node{}
	wrap := func(obj meta.Object) any {
		assert.Same(t, n, obj)
		return "ref"
	}

	got, err := c.ToWire([]*node{n}, wrap)
	require.NoError(t, err)
	assert.Equal(t, []any{"ref"}, got)

	got, err = c.ToWire(map[string]any{"child": n}, wrap)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"child": "ref"}, got)
}

func TestCustomConverter(t *testing.T) {
	c := New()
	pointType := reflect.TypeFor[point]()
	c.Register(pointType, Custom{
		ToWire: func(v any) (any, error) {
			p := v.(point)
			return []any{float64(p.X), float64(p.Y)}, nil
		},
		FromWire: func(v any) (any, error) {
			l, ok := v.([]any)
			if !ok || len(l) != 2 {
				return nil, ErrConversion
			}
			return point{int(l[0].(float64)), int(l[1].(float64))}, nil
		},
	})
	assert.True(t, c.HasCustom(pointType))

	w, err := c.ToWire(point{3, 4}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{3.0, 4.0}, w)

	param := meta.Param{Kind: meta.KindCustom, GoType: pointType}
	n, err := c.FromWire([]any{5.0, 6.0}, param)
	require.NoError(t, err)
	assert.Equal(t, point{5, 6}, n)
	assert.False(t, c.CanConvert("nope", param))

	_, err = c.FromWire(1.0, meta.Param{Kind: meta.KindCustom, GoType: reflect.TypeFor[celsius]()})
	assert.ErrorIs(t, err, ErrConversion)
}

func TestFromWireNumbers(t *testing.T) {
	c := New()
	tests := []struct {
		name  string
		in    any
		kind  meta.Kind
		want  any
		fails bool
	}{
		{"float to int32", 3.0, meta.KindInt32, int32(3), false},
		{"round half away", 2.5, meta.KindInt, 3, false},
		{"int8 overflow", 300.0, meta.KindInt8, nil, true},
		{"negative uint", -1.0, meta.KindUint16, nil, true},
		{"cbor uint64", uint64(7), meta.KindUint64, uint64(7), false},
		{"cbor int64", int64(-7), meta.KindInt64, int64(-7), false},
		{"string to int", "42", meta.KindInt32, int32(42), false},
		{"bad string", "4x", meta.KindInt32, nil, true},
		{"bool to int", true, meta.KindInt, 1, false},
		{"float32", 1.5, meta.KindFloat32, float32(1.5), false},
		{"float32 overflow", 1e300, meta.KindFloat32, nil, true},
		{"string to float", "2.25", meta.KindFloat64, 2.25, false},
		{"list to float", []any{}, meta.KindFloat64, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.FromWire(tt.in, meta.P("", tt.kind))
			if tt.fails {
				if !errors.Is(err, ErrConversion) {
					t.Errorf("FromWire(%v, %s) error = %v, want ErrConversion", tt.in, tt.kind, err)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromWireOtherKinds(t *testing.T) {
	c := New()

	v, err := c.FromWire(1.0, meta.P("", meta.KindBool))
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = c.FromWire("false", meta.P("", meta.KindBool))
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = c.FromWire(12.0, meta.P("", meta.KindString))
	require.NoError(t, err)
	assert.Equal(t, "12", v)

	v, err = c.FromWire(0.5, meta.P("", meta.KindString))
	require.NoError(t, err)
	assert.Equal(t, "0.5", v)

	v, err = c.FromWire(map[string]any{"a": 1.0}, meta.P("", meta.KindVariant))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, v)

	_, err = c.FromWire("x", meta.P("", meta.KindList))
	assert.ErrorIs(t, err, ErrConversion)

	_, err = c.FromWire([]any{}, meta.P("", meta.KindMap))
	assert.ErrorIs(t, err, ErrConversion)

	_, err = c.FromWire(map[string]any{"id": "x"}, meta.P("", meta.KindObject))
	assert.ErrorIs(t, err, ErrConversion)
}

func TestFromWireNullIsZero(t *testing.T) {
	c := New()
	for _, kind := range []meta.Kind{meta.KindInt32, meta.KindString, meta.KindBool, meta.KindFloat64} {
		v, err := c.FromWire(nil, meta.P("", kind))
		require.NoError(t, err)
		assert.Equal(t, Zero(meta.P("", kind)), v)
	}
	assert.Equal(t, []any{}, Zero(meta.P("", meta.KindList)))
	assert.Nil(t, Zero(meta.P("", meta.KindObject)))
	assert.Equal(t, point{}, Zero(meta.Param{Kind: meta.KindCustom, GoType: reflect.TypeFor[point]()}))
}

func TestDecodeBytes(t *testing.T) {
	b, err := DecodeBytes("aGk=")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), b)

	_, err = DecodeBytes(strings.Repeat("!", 3))
	assert.ErrorIs(t, err, ErrConversion)
}

func TestIsObjectType(t *testing.T) {
	assert.True(t, IsObjectType(reflect.TypeFor[*node]()))
	assert.False(t, IsObjectType(reflect.TypeFor[point]()))
}
