package meta

import (
	"errors"
	"testing"

	"github.com/mash-protocol/webchannel-go/pkg/loop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	Base
	value int32
}

var counterType = NewType("Counter", nil).
	Signal("valueChanged", P("value", KindInt32)).
	Signal("reset").
	Property("value", P("value", KindInt32), "valueChanged",
		func(o Object) any { return o.(*counter).value },
		func(o Object, v any) error { o.(*counter).value = v.(int32); return nil }).
	ConstantProperty("unit", P("unit", KindString), func(Object) any { return "items" }).
	Method("add", P("", KindInt32), func(o Object, args []any) (any, error) {
		c := o.(*counter)
		c.value += args[0].(int32)
		return c.value, nil
	}, P("delta", KindInt32)).
	Method("add", P("", KindInt32), func(o Object, args []any) (any, error) {
		return int32(args[0].(float64)), nil
	}, P("delta", KindFloat64)).
	Enum("Mode", EnumMember{Name: "Up", Value: 0}, EnumMember{Name: "Down", Value: 1}).
	MustBuild()

func (c *counter) MetaType() *Type { return counterType }

func TestObjectTypeMembers(t *testing.T) {
	if got := ObjectType.Signal(SignalDestroyed); got == nil || got.Name != "destroyed" {
		t.Errorf("Signal(SignalDestroyed) = %v, want destroyed", got)
	}
	if got := ObjectType.Method(MethodDeleteLater); got == nil || got.Name != "deleteLater" {
		t.Errorf("Method(MethodDeleteLater) = %v, want deleteLater", got)
	}
	if got := ObjectType.Property(PropertyObjectName); got == nil || got.Notify != SignalObjectNameChanged {
		t.Errorf("objectName notify = %v, want %d", got, SignalObjectNameChanged)
	}
}

func TestDerivedTypeKeepsInheritedIndices(t *testing.T) {
	assert.Equal(t, "destroyed", counterType.Method(SignalDestroyed).Name)
	assert.Equal(t, "deleteLater", counterType.Method(MethodDeleteLater).Name)
	assert.Equal(t, 3, counterType.SignalIndex("valueChanged"))
	assert.Equal(t, 4, counterType.SignalIndex("reset"))
	assert.Equal(t, []int{5, 6}, []int{counterType.MethodsNamed("add")[0].Index, counterType.MethodsNamed("add")[1].Index})

	value := counterType.PropertyByName("value")
	require.NotNil(t, value)
	assert.Equal(t, 1, value.Index)
	assert.Equal(t, 3, value.Notify)
	assert.True(t, value.Writable())

	unit := counterType.PropertyByName("unit")
	require.NotNil(t, unit)
	assert.False(t, unit.HasNotify())
	assert.False(t, unit.Writable())

	assert.True(t, counterType.Inherits(ObjectType))
	assert.False(t, ObjectType.Inherits(counterType))
	assert.Len(t, counterType.Enums(), 1)
}

func TestSignatures(t *testing.T) {
	adds := counterType.MethodsNamed("add")
	require.Len(t, adds, 2)
	assert.Equal(t, "add(int32)", adds[0].Signature())
	assert.Equal(t, "add(float64)", adds[1].Signature())
	assert.Same(t, adds[1], counterType.MethodBySignature("add(float64)"))
	assert.Nil(t, counterType.MethodBySignature("add(string)"))
}

func TestNotifyPropertiesLookup(t *testing.T) {
	props := counterType.NotifyProperties(counterType.MustSignal("valueChanged"))
	require.Len(t, props, 1)
	assert.Equal(t, "value", props[0].Name)
	assert.True(t, counterType.IsNotifySignal(3))
	assert.False(t, counterType.IsNotifySignal(4))
}

func TestBuildErrors(t *testing.T) {
	_, err := NewType("Bad", nil).
		Property("x", P("x", KindInt32), "xChanged", nil, nil).
		Build()
	if !errors.Is(err, ErrNotifySignal) {
		t.Errorf("Build() error = %v, want ErrNotifySignal", err)
	}

	_, err = NewType("Dup", nil).
		Signal("tick").
		Signal("tick").
		Build()
	if !errors.Is(err, ErrDuplicateMember) {
		t.Errorf("Build() error = %v, want ErrDuplicateMember", err)
	}

	assert.Panics(t, func() {
		NewType("Bad", nil).Property("x", P("x", KindInt32), "missing", nil, nil).MustBuild()
	})
}

func TestMustSignalPanicsOnUnknown(t *testing.T) {
	assert.Panics(t, func() { counterType.MustSignal("nope") })
}

func TestBaseConnectEmitDisconnect(t *testing.T) {
	c := &counter{}
	var got []any
	id := c.Connect(3, func(args []any) { got = append(got, args...) })

	c.Emit(3, int32(7))
	c.Emit(4)
	assert.Equal(t, []any{int32(7)}, got)
	assert.Equal(t, 1, c.ConnectionCount(3))

	assert.True(t, c.Disconnect(id))
	assert.False(t, c.Disconnect(id))
	c.Emit(3, int32(8))
	assert.Len(t, got, 1)
}

func TestBaseDestroyEmitsOnce(t *testing.T) {
	c := &counter{}
	destroyed := 0
	c.Connect(SignalDestroyed, func([]any) { destroyed++ })

	c.Destroy()
	c.Destroy()
	assert.Equal(t, 1, destroyed)
	assert.True(t, c.IsDestroyed())

	fired := false
	c.Connect(3, func([]any) { fired = true })
	c.Emit(3, int32(1))
	assert.False(t, fired, "emission after destruction")
}

func TestSetObjectNameNotifies(t *testing.T) {
	c := &counter{}
	var names []any
	c.Connect(SignalObjectNameChanged, func(args []any) { names = append(names, args[0]) })

	c.SetObjectName("a")
	c.SetObjectName("a")
	c.SetObjectName("b")
	assert.Equal(t, []any{"a", "b"}, names)
	assert.Equal(t, "b", c.ObjectName())
}

func TestDeleteLaterUsesObjectLoop(t *testing.T) {
	l := loop.New()
	c := &counter{}
	c.MoveToLoop(l)

	DeleteLater(c)
	assert.False(t, c.IsDestroyed())

	l.ProcessEvents()
	assert.True(t, c.IsDestroyed())

	free := &counter{}
	DeleteLater(free)
	assert.True(t, free.IsDestroyed())
}

func TestRegistry(t *testing.T) {
	type plain struct{ Base }
	plainType := NewType("Plain", nil).MustBuild()

	r := NewRegistry()
	RegisterType[*plain](r, plainType)

	got, ok := r.TypeOf(&plain{})
	assert.True(t, ok)
	assert.Same(t, plainType, got)

	got, ok = r.TypeOf(&counter{})
	assert.True(t, ok, "Typed objects resolve without registration")
	assert.Same(t, counterType, got)

	var nilRegistry *Registry
	_, ok = nilRegistry.TypeOf(&plain{})
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestFutureFirstTerminalStateWins(t *testing.T) {
	f := NewFuture()
	var calls int
	var gotValue any
	var gotOK bool
	f.Then(func(v any, ok bool) {
		calls++
		gotValue, gotOK = v, ok
	})

	assert.False(t, f.Done())
	assert.True(t, f.Resolve(42))
	assert.False(t, f.Cancel())
	assert.False(t, f.Fail(errors.New("late")))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 42, gotValue)
	assert.True(t, gotOK)
	assert.Nil(t, f.Err())
}

func TestFutureThenAfterCompletion(t *testing.T) {
	f := NewFuture()
	f.Fail(errors.New("boom"))

	called := false
	f.Then(func(v any, ok bool) {
		called = true
		assert.Nil(t, v)
		assert.False(t, ok)
	})
	assert.True(t, called)
	assert.EqualError(t, f.Err(), "boom")

	r := ResolvedFuture("x")
	v, ok := r.Result()
	assert.Equal(t, "x", v)
	assert.True(t, ok)
}

func TestKindHelpers(t *testing.T) {
	assert.Equal(t, 0, KindFloat64.Granularity())
	assert.Equal(t, 7, KindBool.Granularity())
	assert.Equal(t, -1, KindString.Granularity())
	assert.True(t, KindUint16.IsUnsigned())
	assert.False(t, KindFloat32.IsInteger())
	assert.Equal(t, "int32", KindInt32.String())
	assert.Equal(t, "Counter*", Param{Kind: KindObject, ObjectType: counterType}.TypeName())
}
