package publisher

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/webchannel-go/internal/testtransport"
	"github.com/mash-protocol/webchannel-go/pkg/meta"
	"github.com/mash-protocol/webchannel-go/pkg/transport"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

func asRef(t *testing.T, v any) map[string]any {
	t.Helper()
	ref, ok := v.(map[string]any)
	require.True(t, ok, "expected an object reference, got %T", v)
	require.True(t, wire.IsObjectRef(ref))
	return ref
}

// propertyEntry returns the [index, name, changeInfo, value] entry for name.
func propertyEntry(t *testing.T, info map[string]any, name string) []any {
	t.Helper()
	for _, e := range info[keyProperties].([]any) {
		entry := e.([]any)
		if entry[1] == name {
			return entry
		}
	}
	t.Fatalf("property %q not described", name)
	return nil
}

func TestWrapRegisteredObjectReturnsShortRef(t *testing.T) {
	f := newFixture(t, nil)
	c := &counter{}
	require.NoError(t, f.pub.RegisterObject("counter", c))
	r := f.connect("a")

	obj, _ := f.pub.Lookup("counter")
	ref := asRef(t, f.pub.WrapResult(obj, r, ""))

	assert.Equal(t, map[string]any{wire.ObjectMarkerKey: true, wire.KeyID: "counter"}, ref)
	assert.Zero(t, f.pub.WrappedObjectCount())
}

func TestWrapNewObjectMintsIDAndDescribes(t *testing.T) {
	f := newFixture(t, nil)
	r := f.connect("a")
	c := &counter{value: 4}

	ref := asRef(t, f.pub.WrapResult(c, r, ""))

	id := ref[wire.KeyID].(string)
	_, err := uuid.Parse(id)
	assert.NoError(t, err, "wrapped ids are uuids")
	require.Contains(t, ref, wire.KeyData)
	info := ref[wire.KeyData].(map[string]any)
	assert.Equal(t, float64(4), propertyEntry(t, info, "value")[3])

	assert.Equal(t, 1, f.pub.WrappedObjectCount())
	assert.True(t, f.pub.IsWrapped(c))
	assert.Equal(t, []transport.Transport{r}, f.pub.WrappedTransports(id))
}

func TestWrapSameObjectKeepsID(t *testing.T) {
	f := newFixture(t, nil)
	a, b := f.connect("a"), f.connect("b")
	c := &counter{}

	first := asRef(t, f.pub.WrapResult(c, a, ""))
	second := asRef(t, f.pub.WrapResult(c, b, ""))
	third := asRef(t, f.pub.WrapResult(c, b, ""))

	assert.Equal(t, first[wire.KeyID], second[wire.KeyID])
	assert.Contains(t, second, wire.KeyData, "an already wrapped object is described again")
	assert.Equal(t, []transport.Transport{a, b}, f.pub.WrappedTransports(first[wire.KeyID].(string)))
	assert.Equal(t, first[wire.KeyID], third[wire.KeyID])
	assert.Equal(t, 1, f.pub.WrappedObjectCount())
}

func TestWrapSelfReferenceTerminates(t *testing.T) {
	f := newFixture(t, nil)
	r := f.connect("a")
	c := &counter{}
	c.peer = c

	ref := asRef(t, f.pub.WrapResult(c, r, ""))

	info := ref[wire.KeyData].(map[string]any)
	peer := asRef(t, propertyEntry(t, info, "peer")[3])
	assert.Equal(t, ref[wire.KeyID], peer[wire.KeyID])
	assert.NotContains(t, peer, wire.KeyData)
}

func TestWrapMutualReferenceTerminates(t *testing.T) {
	f := newFixture(t, nil)
	r := f.connect("a")
	a, b := &counter{}, &counter{}
	a.peer, b.peer = b, a

	ref := asRef(t, f.pub.WrapResult(a, r, ""))

	bRef := asRef(t, propertyEntry(t, ref[wire.KeyData].(map[string]any), "peer")[3])
	require.Contains(t, bRef, wire.KeyData, "b is seen for the first time and described")
	aRef := asRef(t, propertyEntry(t, bRef[wire.KeyData].(map[string]any), "peer")[3])
	assert.Equal(t, ref[wire.KeyID], aRef[wire.KeyID])
	assert.NotContains(t, aRef, wire.KeyData)
	assert.Equal(t, 2, f.pub.WrappedObjectCount())
	assert.Equal(t, []transport.Transport{r}, f.pub.WrappedTransports(bRef[wire.KeyID].(string)))
}

func TestWrapRegisteredPeerIsShortRef(t *testing.T) {
	f := newFixture(t, nil)
	r := f.connect("a")
	registered := &counter{}
	require.NoError(t, f.pub.RegisterObject("main", registered))

	ref := asRef(t, f.pub.WrapResult(&counter{peer: registered}, r, ""))
	peer := asRef(t, propertyEntry(t, ref[wire.KeyData].(map[string]any), "peer")[3])
	assert.Equal(t, "main", peer[wire.KeyID])
	assert.NotContains(t, peer, wire.KeyData)
}

func TestWrapInheritsParentVisibility(t *testing.T) {
	f := newFixture(t, nil)
	a := f.connect("a")
	f.connect("b")

	parent := asRef(t, f.pub.WrapResult(&counter{}, a, ""))
	child := asRef(t, f.pub.WrapResult(&counter{}, nil, parent[wire.KeyID].(string)))

	assert.Equal(t, []transport.Transport{a}, f.pub.WrappedTransports(child[wire.KeyID].(string)))
}

func TestWrapWithoutTransportIsVisibleToAll(t *testing.T) {
	f := newFixture(t, nil)
	a, b := f.connect("a"), f.connect("b")

	ref := asRef(t, f.pub.WrapResult(&counter{}, nil, ""))
	assert.Equal(t, []transport.Transport{a, b}, f.pub.WrappedTransports(ref[wire.KeyID].(string)))
}

func TestWrapNilOrDestroyedObject(t *testing.T) {
	f := newFixture(t, nil)
	r := f.connect("a")

	var typedNil *counter
	assert.Nil(t, f.pub.WrapResult(typedNil, r, ""))

	dead := &counter{}
	dead.Destroy()
	assert.Nil(t, f.pub.WrapResult(dead, r, ""))

	assert.Zero(t, f.pub.WrappedObjectCount())
	assert.Equal(t, 2, f.warnings())
}

func TestWrapListsAndMaps(t *testing.T) {
	f := newFixture(t, nil)
	r := f.connect("a")
	c := &counter{}

	out := f.pub.WrapResult(map[string]any{"items": []any{c, 1, "x"}}, r, "")

	items := out.(map[string]any)["items"].([]any)
	ref := asRef(t, items[0])
	assert.Contains(t, ref, wire.KeyData)
	assert.Equal(t, []any{float64(1), "x"}, items[1:])
}

func TestTransportRemovedEvictsOrphans(t *testing.T) {
	f := newFixture(t, nil)
	a := f.connect("a")
	c := &counter{}

	first := asRef(t, f.pub.WrapResult(c, a, ""))
	f.disconnect(a)

	assert.Zero(t, f.pub.WrappedObjectCount())
	assert.False(t, f.pub.IsWrapped(c))
	assert.False(t, c.IsDestroyed(), "eviction does not destroy the native object")
	assert.Equal(t, 0, c.ConnectionCount(meta.SignalDestroyed))

	b := f.connect("b")
	second := asRef(t, f.pub.WrapResult(c, b, ""))
	assert.NotEqual(t, first[wire.KeyID], second[wire.KeyID])
}

func TestTransportRemovedKeepsSharedObjects(t *testing.T) {
	f := newFixture(t, nil)
	a, b := f.connect("a"), f.connect("b")
	c := &counter{}

	ref := asRef(t, f.pub.WrapResult(c, a, ""))
	f.pub.WrapResult(c, b, "")
	f.disconnect(a)

	assert.True(t, f.pub.IsWrapped(c))
	assert.Equal(t, []transport.Transport{b}, f.pub.WrappedTransports(ref[wire.KeyID].(string)))
}

func TestWrappedObjectDestroyed(t *testing.T) {
	f := newFixture(t, nil)
	r := f.connect("a")
	c := &counter{}

	ref := asRef(t, f.pub.WrapResult(c, r, ""))
	c.Destroy()

	assert.Zero(t, f.pub.WrappedObjectCount())
	signals := r.OfType(wire.TypeSignal)
	require.Len(t, signals, 1)
	assert.Equal(t, ref[wire.KeyID], signals[0][wire.KeyObject])
	assert.Equal(t, float64(meta.SignalDestroyed), signals[0][wire.KeySignal])
}

func TestRegisteringWrappedObjectEvictsWrapper(t *testing.T) {
	f := newFixture(t, nil)
	r := f.connect("a")
	c := &counter{}

	f.pub.WrapResult(c, r, "")
	require.NoError(t, f.pub.RegisterObject("named", c))

	assert.False(t, f.pub.IsWrapped(c))
	id, _ := f.pub.ObjectID(c)
	assert.Equal(t, "named", id)
	assert.Equal(t, 1, c.ConnectionCount(meta.SignalDestroyed))
}

func TestClassInfo(t *testing.T) {
	f := newFixture(t, nil)
	r := f.connect("a")
	c := &counter{value: 2, label: "two"}
	require.NoError(t, f.pub.RegisterObject("counter", c))

	info := f.pub.ClassInfo(c, r)

	t.Run("properties", func(t *testing.T) {
		value := propertyEntry(t, info, "value")
		assert.Equal(t, []any{float64(propValue), "value", []any{float64(1), float64(sigValueChanged)}, float64(2)}, value)

		label := propertyEntry(t, info, "label")
		assert.Equal(t, "two", label[3])

		kind := propertyEntry(t, info, "kind")
		assert.Equal(t, []any{}, kind[2], "constant properties have no change info")

		name := propertyEntry(t, info, "objectName")
		assert.Equal(t, []any{float64(1), float64(meta.SignalObjectNameChanged)}, name[2])
	})

	t.Run("methods", func(t *testing.T) {
		methods := info[keyMethods].([]any)
		assert.Contains(t, methods, []any{"increment", float64(methodIndex(t, "increment()"))})
		assert.Contains(t, methods, []any{"increment()", float64(methodIndex(t, "increment()"))})
		assert.Contains(t, methods, []any{"overload", float64(methodIndex(t, "overload(float64)"))})
		assert.Contains(t, methods, []any{"overload(int)", float64(methodIndex(t, "overload(int)"))})
		assert.Contains(t, methods, []any{"overload(string)", float64(methodIndex(t, "overload(string)"))})
		assert.NotContains(t, methods, []any{"overload", float64(methodIndex(t, "overload(int)"))})
		assert.Contains(t, methods, []any{"deleteLater", float64(meta.MethodDeleteLater)})
		for _, m := range methods {
			assert.NotEqual(t, "secret", m.([]any)[0])
		}
	})

	t.Run("signals", func(t *testing.T) {
		signals := info[keySignals].([]any)
		assert.ElementsMatch(t, []any{
			[]any{"destroyed", float64(meta.SignalDestroyed)},
			[]any{"tick", float64(sigTick)},
		}, signals, "change signals are implied by their properties")
	})

	t.Run("enums", func(t *testing.T) {
		assert.Equal(t, map[string]any{
			"Mode": map[string]any{"Idle": float64(0), "Running": float64(1)},
		}, info[keyEnums])
	})
}

// holder is a registered object whose property refers to another object.
type holder struct {
	meta.Base
	item meta.Object
}

var (
	holderType     *meta.Type
	sigItemChanged int
)

func init() {
	holderType = meta.NewType("Holder", nil).
		Signal("itemChanged", meta.Param{Name: "item", Kind: meta.KindObject}).
		Property("item", meta.Param{Name: "item", Kind: meta.KindObject}, "itemChanged",
			func(obj meta.Object) any { return obj.(*holder).item }, nil).
		MustBuild()
	sigItemChanged = holderType.MustSignal("itemChanged")
}

func (h *holder) MetaType() *meta.Type { return holderType }

func (h *holder) SetItem(obj meta.Object) {
	h.item = obj
	h.Emit(sigItemChanged, obj)
}

func TestBroadcastOfWrappedObjectAddsRecipients(t *testing.T) {
	f, c, a := publishedCounter(t, synchronous)
	h := &holder{}
	require.NoError(t, f.pub.RegisterObject("holder", h))
	b := f.connect("b")
	f.initClient(b)
	child := &counter{value: 1}
	c.child = child

	ref := asRef(t, f.invoke(a, "counter", "spawn")[wire.KeyData])
	id := ref[wire.KeyID].(string)
	require.Equal(t, []transport.Transport{a}, f.pub.WrappedTransports(id))

	h.SetItem(child)

	entries := updateEntries(t, b)
	require.Len(t, entries, 1)
	item := asRef(t, entries[0][wire.KeyProperties].(map[string]any)[key(holderType.PropertyByName("item").Index)])
	assert.Equal(t, id, item[wire.KeyID])
	assert.Contains(t, item, wire.KeyData, "b sees the object for the first time")
	assert.Equal(t, []transport.Transport{a, b}, f.pub.WrappedTransports(id))

	for _, r := range []*testtransport.Recorder{a, b} {
		r.Take()
		f.pub.HandleMessage(wire.NewRequest(wire.TypeIdle, nil, nil), r)
	}
	child.SetValue(9)
	entries = updateEntries(t, b)
	require.Len(t, entries, 1, "b now receives the wrapped object's updates")
	assert.Equal(t, id, entries[0][wire.KeyObject])
}

func TestWrapReusesDescriptionForKnownTransports(t *testing.T) {
	f := newFixture(t, nil)
	a, b := f.connect("a"), f.connect("b")
	c := &counter{value: 1}

	first := asRef(t, f.pub.WrapResult(c, a, ""))
	c.value = 2
	again := asRef(t, f.pub.WrapResult(c, a, ""))
	assert.Equal(t, float64(1), propertyEntry(t, again[wire.KeyData].(map[string]any), "value")[3],
		"owners get the cached description")
	assert.Equal(t, first[wire.KeyData], again[wire.KeyData])

	fresh := asRef(t, f.pub.WrapResult(c, b, ""))
	assert.Equal(t, float64(2), propertyEntry(t, fresh[wire.KeyData].(map[string]any), "value")[3],
		"a new owner gets current values")
}
