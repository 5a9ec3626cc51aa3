package interceptor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mash-protocol/webchannel-go/pkg/loop"
	"github.com/mash-protocol/webchannel-go/pkg/meta"
)

// Interceptor errors.
var (
	ErrUnknownSignal = errors.New("unknown signal")
	ErrNotConnected  = errors.New("signal not connected")
)

// DispatchFunc receives an intercepted emission on the target loop.
type DispatchFunc func(obj meta.Object, signal int, args []any)

// Config configures an Interceptor.
type Config struct {
	// Source is the loop the observed objects live on. Nil means the target loop.
	Source *loop.Loop

	// Target is the loop dispatch runs on.
	Target *loop.Loop

	// Dispatch receives every emission of a hooked signal.
	Dispatch DispatchFunc

	// Logger for operational logging (optional).
	Logger *slog.Logger
}

type hook struct {
	conn  meta.ConnectionID
	count int
}

// Interceptor installs one reference-counted hook per (object, signal) and
// forwards emissions to a single dispatcher. Emissions on a loop other than
// the target loop are posted onto the target loop.
//
// ConnectTo, DisconnectFrom, Remove and Clear must be called on the target
// loop. The hooks themselves run on whatever goroutine emits.
type Interceptor struct {
	source   *loop.Loop
	target   *loop.Loop
	dispatch DispatchFunc
	logger   *slog.Logger

	hooks map[meta.Object]map[int]*hook

	mu         sync.Mutex
	signatures map[*meta.Type]map[int][]meta.Param
}

// New creates an interceptor.
func New(cfg Config) *Interceptor {
	source := cfg.Source
	if source == nil {
		source = cfg.Target
	}
	return &Interceptor{
		source:     source,
		target:     cfg.Target,
		dispatch:   cfg.Dispatch,
		logger:     cfg.Logger,
		hooks:      make(map[meta.Object]map[int]*hook),
		signatures: make(map[*meta.Type]map[int][]meta.Param),
	}
}

// Source returns the loop this interceptor observes.
func (in *Interceptor) Source() *loop.Loop {
	return in.source
}

// ConnectTo adds one subscriber to signal on obj, installing the hook on the
// first subscription.
func (in *Interceptor) ConnectTo(obj meta.Object, t *meta.Type, signal int) error {
	sig := t.Signal(signal)
	if sig == nil {
		return fmt.Errorf("%w: %s has no signal %d", ErrUnknownSignal, t.Name(), signal)
	}

	byIndex := in.hooks[obj]
	if byIndex == nil {
		byIndex = make(map[int]*hook)
		in.hooks[obj] = byIndex
	}
	if h := byIndex[signal]; h != nil {
		h.count++
		return nil
	}

	params := in.signature(t, sig)
	conn := obj.Connect(signal, func(args []any) {
		in.fire(obj, signal, normalize(params, args))
	})
	byIndex[signal] = &hook{conn: conn, count: 1}
	in.debugLog("interceptor: hook installed", "type", t.Name(), "signal", sig.Name)
	return nil
}

// DisconnectFrom removes one subscriber, uninstalling the hook when the
// last one leaves.
func (in *Interceptor) DisconnectFrom(obj meta.Object, signal int) error {
	byIndex := in.hooks[obj]
	h := byIndex[signal]
	if h == nil {
		return fmt.Errorf("%w: signal %d", ErrNotConnected, signal)
	}
	h.count--
	if h.count > 0 {
		return nil
	}
	obj.Disconnect(h.conn)
	delete(byIndex, signal)
	if len(byIndex) == 0 {
		delete(in.hooks, obj)
	}
	return nil
}

// Remove uninstalls every hook on obj.
func (in *Interceptor) Remove(obj meta.Object) {
	for _, h := range in.hooks[obj] {
		obj.Disconnect(h.conn)
	}
	delete(in.hooks, obj)
}

// Clear uninstalls every hook.
func (in *Interceptor) Clear() {
	for obj := range in.hooks {
		in.Remove(obj)
	}
}

// IsConnected returns true if a hook is installed for (obj, signal).
func (in *Interceptor) IsConnected(obj meta.Object, signal int) bool {
	return in.hooks[obj][signal] != nil
}

// SubscriberCount returns the subscriber count for (obj, signal).
func (in *Interceptor) SubscriberCount(obj meta.Object, signal int) int {
	if h := in.hooks[obj][signal]; h != nil {
		return h.count
	}
	return 0
}

// ObjectCount returns the number of objects with at least one hook.
func (in *Interceptor) ObjectCount() int {
	return len(in.hooks)
}

func (in *Interceptor) fire(obj meta.Object, signal int, args []any) {
	if in.source == in.target {
		in.dispatch(obj, signal, args)
		return
	}
	in.target.Post(func() {
		in.dispatch(obj, signal, args)
	})
}

// signature returns the argument types of sig, recorded once per type.
func (in *Interceptor) signature(t *meta.Type, sig *meta.Method) []meta.Param {
	in.mu.Lock()
	defer in.mu.Unlock()
	byIndex := in.signatures[t]
	if byIndex == nil {
		byIndex = make(map[int][]meta.Param)
		in.signatures[t] = byIndex
	}
	if params, ok := byIndex[sig.Index]; ok {
		return params
	}
	byIndex[sig.Index] = sig.Params
	return sig.Params
}

// normalize returns a copy of args sized to the signal's declared arity.
func normalize(params []meta.Param, args []any) []any {
	out := make([]any, len(params))
	copy(out, args)
	return out
}

func (in *Interceptor) debugLog(msg string, args ...any) {
	if in.logger != nil {
		in.logger.Debug(msg, args...)
	}
}
