package meta

import (
	"reflect"
	"sync"
)

// Registry maps native Go types to their descriptor tables.
//
// Objects implementing Typed do not need to be registered. A nil *Registry
// only resolves Typed objects.
type Registry struct {
	mu    sync.RWMutex
	types map[reflect.Type]*Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[reflect.Type]*Type)}
}

// Register associates goType with t. Registering a type twice replaces the entry.
func (r *Registry) Register(goType reflect.Type, t *Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[goType] = t
}

// RegisterType associates the Go type T (usually a pointer type) with t.
func RegisterType[T Object](r *Registry, t *Type) {
	r.Register(reflect.TypeFor[T](), t)
}

// TypeOf returns the descriptor table for obj.
func (r *Registry) TypeOf(obj Object) (*Type, bool) {
	if obj == nil {
		return nil, false
	}
	if typed, ok := obj.(Typed); ok {
		if t := typed.MetaType(); t != nil {
			return t, true
		}
	}
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[reflect.TypeOf(obj)]
	return t, ok
}

// Len returns the number of registered Go types.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}
