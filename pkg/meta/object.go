package meta

import (
	"slices"
	"sync"

	"github.com/mash-protocol/webchannel-go/pkg/loop"
)

// ConnectionID identifies one signal connection on one object.
type ConnectionID uint64

// SignalFunc receives the arguments of an emitted signal.
type SignalFunc func(args []any)

// Object is the capability set a native object needs to be published.
// Embed Base to get a complete implementation.
type Object interface {
	// Connect attaches fn to the signal at index signal.
	Connect(signal int, fn SignalFunc) ConnectionID

	// Disconnect removes a connection. Returns false if it was unknown.
	Disconnect(id ConnectionID) bool

	ObjectName() string
	SetObjectName(name string)

	// Loop returns the loop the object lives on, nil if it has none.
	Loop() *loop.Loop

	// IsDestroyed returns true once Destroy has been called.
	IsDestroyed() bool

	// Destroy emits destroyed exactly once and drops all connections.
	Destroy()
}

// Typed is implemented by objects that carry their own descriptor table.
type Typed interface {
	MetaType() *Type
}

type connection struct {
	id     ConnectionID
	signal int
	fn     SignalFunc
}

// Base implements Object. The zero value is ready to use.
// Signals may be emitted from any goroutine; handlers run on the emitting goroutine.
type Base struct {
	mu        sync.Mutex
	name      string
	loop      *loop.Loop
	nextID    ConnectionID
	conns     []connection
	destroyed bool
}

// Connect attaches fn to signal.
func (b *Base) Connect(signal int, fn SignalFunc) ConnectionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	if b.destroyed {
		return b.nextID
	}
	b.conns = append(b.conns, connection{id: b.nextID, signal: signal, fn: fn})
	return b.nextID
}

// Disconnect removes the connection with the given id.
func (b *Base) Disconnect(id ConnectionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, c := range b.conns {
		if c.id == id {
			b.conns = slices.Delete(b.conns, i, i+1)
			return true
		}
	}
	return false
}

// ConnectionCount returns the number of live connections to signal.
func (b *Base) ConnectionCount(signal int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.conns {
		if c.signal == signal {
			n++
		}
	}
	return n
}

// Emit calls every handler connected to signal. Emitting on a destroyed object does nothing.
func (b *Base) Emit(signal int, args ...any) {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	b.emit(signal, args)
}

func (b *Base) emit(signal int, args []any) {
	b.mu.Lock()
	var fns []SignalFunc
	for _, c := range b.conns {
		if c.signal == signal {
			fns = append(fns, c.fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(args)
	}
}

// ObjectName returns the object's name.
func (b *Base) ObjectName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.name
}

// SetObjectName renames the object and emits objectNameChanged when it changes.
func (b *Base) SetObjectName(name string) {
	b.mu.Lock()
	if b.name == name {
		b.mu.Unlock()
		return
	}
	b.name = name
	b.mu.Unlock()
	b.Emit(SignalObjectNameChanged, name)
}

// Loop returns the object's loop.
func (b *Base) Loop() *loop.Loop {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loop
}

// MoveToLoop sets the loop the object lives on.
func (b *Base) MoveToLoop(l *loop.Loop) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loop = l
}

// IsDestroyed returns true once Destroy has been called.
func (b *Base) IsDestroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}

// Destroy marks the object destroyed, emits destroyed and drops all connections.
func (b *Base) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	b.mu.Unlock()

	b.emit(SignalDestroyed, nil)

	b.mu.Lock()
	b.conns = nil
	b.mu.Unlock()
}

// DeleteLater destroys obj on its own loop, or immediately if it has none.
func DeleteLater(obj Object) {
	if l := obj.Loop(); l != nil {
		l.Post(obj.Destroy)
		return
	}
	obj.Destroy()
}

// Compile-time interface satisfaction check.
var _ Object = (*Base)(nil)
