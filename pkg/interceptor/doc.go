// Package interceptor turns signal emissions of native objects into calls to
// one dispatcher.
//
// Subscriptions are reference counted per (object, signal): the first
// subscriber installs a hook on the object, the last one to leave removes it.
// Each emission is normalized to the signal's declared arity before it is
// dispatched.
//
// One Interceptor serves the objects of one loop. When that loop differs from
// the dispatcher's loop, emissions are posted across instead of dispatched
// in place.
package interceptor
