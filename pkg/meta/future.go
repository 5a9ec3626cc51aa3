package meta

import "sync"

// FutureFunc receives the outcome of a Future. ok is false when the future
// failed or was cancelled.
type FutureFunc func(value any, ok bool)

// Future is a deferred method result. It reaches exactly one terminal state:
// resolved with a value, failed, or cancelled. Only the first transition counts.
type Future struct {
	mu    sync.Mutex
	done  bool
	ok    bool
	value any
	err   error
	cbs   []FutureFunc
}

// NewFuture returns a pending future.
func NewFuture() *Future {
	return &Future{}
}

// ResolvedFuture returns a future that is already resolved with v.
func ResolvedFuture(v any) *Future {
	f := &Future{}
	f.Resolve(v)
	return f
}

// Resolve completes the future with v.
func (f *Future) Resolve(v any) bool {
	return f.finish(v, true, nil)
}

// Fail completes the future without a value.
func (f *Future) Fail(err error) bool {
	return f.finish(nil, false, err)
}

// Cancel completes the future without a value.
func (f *Future) Cancel() bool {
	return f.finish(nil, false, nil)
}

func (f *Future) finish(v any, ok bool, err error) bool {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		return false
	}
	f.done = true
	f.ok = ok
	f.value = v
	f.err = err
	cbs := f.cbs
	f.cbs = nil
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(v, ok)
	}
	return true
}

// Done returns true once the future reached a terminal state.
func (f *Future) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// Result returns the value and whether the future resolved successfully.
func (f *Future) Result() (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.ok
}

// Err returns the error passed to Fail, if any.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Then registers fn to run once the future completes. If it already has, fn
// runs immediately on the calling goroutine; otherwise it runs on the
// goroutine that completes the future.
func (f *Future) Then(fn FutureFunc) {
	f.mu.Lock()
	if !f.done {
		f.cbs = append(f.cbs, fn)
		f.mu.Unlock()
		return
	}
	v, ok := f.value, f.ok
	f.mu.Unlock()
	fn(v, ok)
}
