// Package meta describes native object types so they can be published
// without runtime reflection.
//
// Each publishable Go type gets one immutable Type built at init with a
// TypeBuilder: its properties, signals, methods and enums, each with a stable
// index. Signals and methods share one index space. Every Type derives from
// ObjectType, so indices of the inherited members are the same everywhere:
//
//	var CounterType = meta.NewType("Counter", nil).
//	    Signal("valueChanged", meta.P("value", meta.KindInt32)).
//	    Property("value", meta.P("value", meta.KindInt32), "valueChanged",
//	        func(o meta.Object) any { return o.(*Counter).Value() },
//	        func(o meta.Object, v any) error { o.(*Counter).SetValue(v.(int32)); return nil }).
//	    MustBuild()
//
// Objects embed Base for signal connections, naming, loop affinity and
// destruction. A Registry maps Go types to their Type for objects that do not
// implement Typed themselves.
package meta
