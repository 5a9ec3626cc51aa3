package publisher

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"go.uber.org/multierr"

	"github.com/mash-protocol/webchannel-go/pkg/convert"
	"github.com/mash-protocol/webchannel-go/pkg/interceptor"
	"github.com/mash-protocol/webchannel-go/pkg/log"
	"github.com/mash-protocol/webchannel-go/pkg/loop"
	"github.com/mash-protocol/webchannel-go/pkg/meta"
	"github.com/mash-protocol/webchannel-go/pkg/transport"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// Publisher errors.
var (
	ErrUnknownObject   = errors.New("unknown object")
	ErrUnknownMethod   = errors.New("unknown method")
	ErrUnknownProperty = errors.New("unknown property")
	ErrNoMatch         = errors.New("no matching overload")
	ErrAmbiguous       = errors.New("ambiguous overload")
	ErrNotInvokable    = errors.New("method is not invokable")
	ErrNotWrapped      = errors.New("object is not wrapped")
	ErrNoMetaType      = errors.New("object has no meta type")
	ErrDestroyed       = errors.New("object is destroyed")
	ErrNotSubscribed   = errors.New("signal not subscribed by transport")
)

// Sender delivers messages to the transports of a channel.
type Sender interface {
	// Transports returns the connected transports in connection order.
	Transports() []transport.Transport

	// Transport returns the connected transport with the given id.
	Transport(id string) (transport.Transport, bool)

	// Send delivers msg to t right away.
	Send(msg wire.Message, t transport.Transport)
}

// wrappedObject is an object published implicitly because it appeared in a
// result, property value or signal argument.
type wrappedObject struct {
	id         string
	obj        meta.Object
	typ        *meta.Type
	transports []transport.Transport

	// info is the last description sent, reused while no new peer sees the object.
	info map[string]any
}

func (w *wrappedObject) hasTransport(t transport.Transport) bool {
	return slices.Contains(w.transports, t)
}

// observation records which signals of an object are hooked for property updates.
type observation struct {
	hooks *interceptor.Interceptor

	// notify maps a change signal to the properties it notifies.
	notify map[int][]int

	// subscribers counts the signal subscriptions each transport made.
	// They share the interceptor hooks with the publisher's own, so a
	// transport may only release what it added.
	subscribers map[transport.Transport]map[int]int
}

// Publisher exposes native objects to the transports of one channel.
//
// A Publisher is owned by its loop: every method must be called on that loop,
// and it takes no locks. Objects living on other loops are observed through
// per-loop interceptors that post emissions back onto the owner loop.
type Publisher struct {
	loop   *loop.Loop
	sender Sender
	config Config
	conv   *convert.Converter
	logger *slog.Logger
	plog   log.Logger

	registered    map[string]meta.Object
	registeredIDs map[meta.Object]string
	wrapped       map[string]*wrappedObject
	wrappedIDs    map[meta.Object]string

	interceptors map[*loop.Loop]*interceptor.Interceptor
	observed     map[meta.Object]*observation

	// observing becomes true on the first Init; registered objects are only
	// watched for property changes from then on.
	observing bool

	pending      map[meta.Object]*pendingUpdate
	pendingOrder []meta.Object
	flushPending bool
	timer        *loop.Timer
	blockUpdates bool

	clients map[transport.Transport]*clientState

	closed bool
}

// New creates a publisher owned by l that reaches clients through sender.
func New(l *loop.Loop, sender Sender, config Config) *Publisher {
	conv := config.Converter
	if conv == nil {
		conv = convert.New()
	}
	return &Publisher{
		loop:          l,
		sender:        sender,
		config:        config,
		conv:          conv,
		logger:        config.Logger,
		plog:          config.ProtocolLogger,
		registered:    make(map[string]meta.Object),
		registeredIDs: make(map[meta.Object]string),
		wrapped:       make(map[string]*wrappedObject),
		wrappedIDs:    make(map[meta.Object]string),
		interceptors:  make(map[*loop.Loop]*interceptor.Interceptor),
		observed:      make(map[meta.Object]*observation),
		pending:       make(map[meta.Object]*pendingUpdate),
		blockUpdates:  config.BlockUpdates,
		clients:       make(map[transport.Transport]*clientState),
	}
}

// Loop returns the loop that owns the publisher.
func (p *Publisher) Loop() *loop.Loop { return p.loop }

// RegisterObject publishes obj under id. Registering the same object under a
// new id moves it; registering another object under a taken id replaces the
// previous one.
func (p *Publisher) RegisterObject(id string, obj meta.Object) error {
	if isNil(obj) {
		p.warnLog("publisher: cannot register nil object", "id", id)
		return fmt.Errorf("%w: nil object for %q", ErrUnknownObject, id)
	}
	if obj.IsDestroyed() {
		p.warnLog("publisher: cannot register destroyed object", "id", id)
		return fmt.Errorf("%w: %q", ErrDestroyed, id)
	}
	typ, ok := p.typeOf(obj)
	if !ok {
		p.warnLog("publisher: cannot register object without meta type", "id", id, "type", fmt.Sprintf("%T", obj))
		return fmt.Errorf("%w: %T", ErrNoMetaType, obj)
	}

	if existing, ok := p.registeredIDs[obj]; ok {
		if existing == id {
			return nil
		}
		p.DeregisterObject(obj)
	}
	if prev, ok := p.registered[id]; ok {
		p.DeregisterObject(prev)
	}
	if wid, ok := p.wrappedIDs[obj]; ok {
		// The object was handed out implicitly before; it now has a stable name.
		p.evictWrapped(p.wrapped[wid])
	}

	p.registered[id] = obj
	p.registeredIDs[obj] = id
	p.hookDestroyed(obj, typ)
	if p.observing {
		if len(p.sender.Transports()) > 0 {
			p.warnLog("publisher: object registered after initialization, existing clients are not notified", "id", id)
		}
		p.observe(obj, typ)
	}
	p.logObject(id, "REGISTERED")
	p.debugLog("publisher: object registered", "id", id, "type", typ.Name())
	return nil
}

// RegisterObjects registers every entry of objects, in key order.
func (p *Publisher) RegisterObjects(objects map[string]meta.Object) error {
	var err error
	for _, id := range slices.Sorted(maps.Keys(objects)) {
		err = multierr.Append(err, p.RegisterObject(id, objects[id]))
	}
	return err
}

// DeregisterObject unpublishes obj. Clients receive its destroyed signal as
// if the object had been destroyed.
func (p *Publisher) DeregisterObject(obj meta.Object) {
	if _, ok := p.registeredIDs[obj]; !ok {
		p.warnLog("publisher: deregistering unknown object", "type", fmt.Sprintf("%T", obj))
		return
	}
	p.signalEmitted(obj, meta.SignalDestroyed, nil)
}

// Lookup returns the registered or wrapped object with the given id.
func (p *Publisher) Lookup(id string) (meta.Object, bool) {
	if obj, ok := p.registered[id]; ok {
		return obj, true
	}
	if w, ok := p.wrapped[id]; ok {
		return w.obj, true
	}
	return nil, false
}

// ObjectID returns the id obj is published under.
func (p *Publisher) ObjectID(obj meta.Object) (string, bool) {
	if id, ok := p.registeredIDs[obj]; ok {
		return id, true
	}
	id, ok := p.wrappedIDs[obj]
	return id, ok
}

// IsWrapped returns true if obj is published implicitly.
func (p *Publisher) IsWrapped(obj meta.Object) bool {
	_, ok := p.wrappedIDs[obj]
	return ok
}

// RegisteredObjects returns a copy of the explicitly registered objects.
func (p *Publisher) RegisteredObjects() map[string]meta.Object {
	return maps.Clone(p.registered)
}

// WrappedObjectCount returns the number of implicitly published objects.
func (p *Publisher) WrappedObjectCount() int {
	return len(p.wrapped)
}

// WrappedTransports returns the transports that can see the wrapped object
// with the given id.
func (p *Publisher) WrappedTransports(id string) []transport.Transport {
	if w, ok := p.wrapped[id]; ok {
		return slices.Clone(w.transports)
	}
	return nil
}

// TransportAdded starts tracking the client state of t. New clients are busy
// until they report idle.
func (p *Publisher) TransportAdded(t transport.Transport) {
	if _, ok := p.clients[t]; !ok {
		p.clients[t] = &clientState{}
	}
}

// TransportRemoved forgets t. Wrapped objects no other transport can see are evicted.
func (p *Publisher) TransportRemoved(t transport.Transport) {
	delete(p.clients, t)
	p.releaseSubscriptions(t)

	var orphans []*wrappedObject
	for _, w := range p.wrapped {
		i := slices.Index(w.transports, t)
		if i < 0 {
			continue
		}
		w.transports = slices.Delete(w.transports, i, i+1)
		if len(w.transports) == 0 {
			orphans = append(orphans, w)
		}
	}
	for _, w := range orphans {
		p.debugLog("publisher: evicting wrapped object", "id", w.id, "transport", t.ID())
		p.evictWrapped(w)
	}
}

// Close stops the publisher. Hooks are uninstalled and pending work is
// dropped; later calls and outstanding deferred results do nothing.
func (p *Publisher) Close() {
	if p.closed {
		return
	}
	p.closed = true
	p.stopTimer()
	for _, in := range p.interceptors {
		in.Clear()
	}
	clear(p.interceptors)
	clear(p.observed)
	clear(p.pending)
	p.pendingOrder = nil
	clear(p.clients)
}

// Closed returns true after Close.
func (p *Publisher) Closed() bool { return p.closed }

// TypeOf returns the descriptor table used for obj.
func (p *Publisher) TypeOf(obj meta.Object) (*meta.Type, bool) { return p.typeOf(obj) }

func (p *Publisher) typeOf(obj meta.Object) (*meta.Type, bool) {
	return p.config.Types.TypeOf(obj)
}

// interceptorFor returns the interceptor for the loop obj lives on,
// creating it on first use. Objects without a loop live on the publisher's.
func (p *Publisher) interceptorFor(obj meta.Object) *interceptor.Interceptor {
	l := obj.Loop()
	if l == nil {
		l = p.loop
	}
	in, ok := p.interceptors[l]
	if !ok {
		in = interceptor.New(interceptor.Config{
			Source:   l,
			Target:   p.loop,
			Dispatch: p.signalEmitted,
			Logger:   p.logger,
		})
		p.interceptors[l] = in
	}
	return in
}

func (p *Publisher) observationFor(obj meta.Object) *observation {
	o, ok := p.observed[obj]
	if !ok {
		o = &observation{hooks: p.interceptorFor(obj)}
		p.observed[obj] = o
	}
	return o
}

func (p *Publisher) hookDestroyed(obj meta.Object, typ *meta.Type) {
	o := p.observationFor(obj)
	if o.hooks.IsConnected(obj, meta.SignalDestroyed) {
		return
	}
	if err := o.hooks.ConnectTo(obj, typ, meta.SignalDestroyed); err != nil {
		p.warnLog("publisher: cannot watch destruction", "type", typ.Name(), "error", err)
	}
}

// observe hooks the change signals of every notifying property once.
func (p *Publisher) observe(obj meta.Object, typ *meta.Type) {
	o := p.observationFor(obj)
	if o.notify != nil {
		return
	}
	o.notify = make(map[int][]int)
	for _, prop := range typ.Properties() {
		if !prop.HasNotify() {
			continue
		}
		if len(o.notify[prop.Notify]) == 0 {
			if err := o.hooks.ConnectTo(obj, typ, prop.Notify); err != nil {
				p.warnLog("publisher: cannot watch property", "type", typ.Name(), "property", prop.Name, "error", err)
				continue
			}
		}
		o.notify[prop.Notify] = append(o.notify[prop.Notify], prop.Index)
	}
}

// subscribe connects t to a signal of obj on behalf of the remote peer.
func (p *Publisher) subscribe(obj meta.Object, typ *meta.Type, signal int, t transport.Transport) error {
	o := p.observationFor(obj)
	if err := o.hooks.ConnectTo(obj, typ, signal); err != nil {
		return err
	}
	if o.subscribers == nil {
		o.subscribers = make(map[transport.Transport]map[int]int)
	}
	if o.subscribers[t] == nil {
		o.subscribers[t] = make(map[int]int)
	}
	o.subscribers[t][signal]++
	return nil
}

// unsubscribe releases one subscription t made earlier. Hooks held by the
// publisher itself or by other transports stay installed.
func (p *Publisher) unsubscribe(obj meta.Object, signal int, t transport.Transport) error {
	o := p.observed[obj]
	if o == nil || o.subscribers[t][signal] == 0 {
		return fmt.Errorf("%w: signal %d", ErrNotSubscribed, signal)
	}
	counts := o.subscribers[t]
	counts[signal]--
	if counts[signal] == 0 {
		delete(counts, signal)
	}
	if len(counts) == 0 {
		delete(o.subscribers, t)
	}
	return o.hooks.DisconnectFrom(obj, signal)
}

// releaseSubscriptions drops every signal subscription t still holds.
func (p *Publisher) releaseSubscriptions(t transport.Transport) {
	for obj, o := range p.observed {
		for signal, n := range o.subscribers[t] {
			for range n {
				if err := o.hooks.DisconnectFrom(obj, signal); err != nil {
					p.warnLog("publisher: cannot release subscription", "transport", t.ID(), "signal", signal, "error", err)
				}
			}
		}
		delete(o.subscribers, t)
	}
}

// startObserving begins property observation of every registered object.
func (p *Publisher) startObserving() {
	if p.observing {
		return
	}
	p.observing = true
	for _, id := range slices.Sorted(maps.Keys(p.registered)) {
		obj := p.registered[id]
		if typ, ok := p.typeOf(obj); ok {
			p.observe(obj, typ)
		}
	}
}

// objectDestroyed purges every trace of obj.
func (p *Publisher) objectDestroyed(obj meta.Object) {
	id, ok := p.registeredIDs[obj]
	if ok {
		delete(p.registeredIDs, obj)
		delete(p.registered, id)
	} else if id, ok = p.wrappedIDs[obj]; ok {
		delete(p.wrappedIDs, obj)
		delete(p.wrapped, id)
	} else {
		return
	}

	if o, ok := p.observed[obj]; ok {
		o.hooks.Remove(obj)
		delete(p.observed, obj)
	}
	p.dropPending(obj)
	p.logObject(id, "RELEASED")
	p.debugLog("publisher: object released", "id", id)
}

func (p *Publisher) evictWrapped(w *wrappedObject) {
	if w != nil {
		p.objectDestroyed(w.obj)
	}
}

func (p *Publisher) logObject(id, state string) {
	if p.plog == nil {
		return
	}
	p.plog.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerChannel,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityObject,
			NewState: state,
			Reason:   id,
		},
	})
}

func (p *Publisher) logClient(t transport.Transport, oldState, newState string) {
	if p.plog == nil {
		return
	}
	p.plog.Log(log.Event{
		Timestamp:   time.Now(),
		TransportID: t.ID(),
		Layer:       log.LayerChannel,
		Category:    log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityClient,
			OldState: oldState,
			NewState: newState,
		},
	})
}

func (p *Publisher) debugLog(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Publisher) warnLog(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
