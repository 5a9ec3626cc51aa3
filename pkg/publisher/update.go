package publisher

import (
	"slices"

	"github.com/mash-protocol/webchannel-go/pkg/meta"
	"github.com/mash-protocol/webchannel-go/pkg/transport"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// pendingUpdate accumulates the changes of one object between two flushes.
type pendingUpdate struct {
	properties  []int
	signals     map[int][]any
	signalOrder []int
}

func (u *pendingUpdate) markProperty(index int) {
	if !slices.Contains(u.properties, index) {
		u.properties = append(u.properties, index)
	}
}

func (u *pendingUpdate) setSignal(signal int, args []any) {
	if u.signals == nil {
		u.signals = make(map[int][]any)
	}
	if _, ok := u.signals[signal]; !ok {
		u.signalOrder = append(u.signalOrder, signal)
	}
	u.signals[signal] = args
}

// clientState gates property updates per transport. Updates queue while the
// client is busy and go out once it reports idle.
type clientState struct {
	idle  bool
	queue []wire.Message
}

// signalEmitted is the interceptor's dispatch target. It runs on the
// publisher's loop.
func (p *Publisher) signalEmitted(obj meta.Object, signal int, args []any) {
	if p.closed {
		return
	}
	id, ok := p.ObjectID(obj)
	if !ok {
		return
	}
	if len(p.sender.Transports()) == 0 {
		if signal == meta.SignalDestroyed {
			p.objectDestroyed(obj)
		}
		return
	}

	if signal == meta.SignalDestroyed {
		p.sendSignal(id, signal, args)
		p.objectDestroyed(obj)
		return
	}

	if o := p.observed[obj]; o != nil && len(o.notify[signal]) > 0 {
		u := p.pendingFor(obj)
		for _, index := range o.notify[signal] {
			u.markProperty(index)
		}
		u.setSignal(signal, args)
		p.scheduleFlush()
		return
	}

	if p.config.SignalDelivery == SignalDeliveryImmediate {
		p.sendSignal(id, signal, args)
		return
	}
	p.pendingFor(obj).setSignal(signal, args)
	p.scheduleFlush()
}

// sendSignal sends a Signal message to every transport that can see id.
func (p *Publisher) sendSignal(id string, signal int, args []any) {
	scope := &wrapScope{parentID: id, visiting: make(map[meta.Object]struct{})}
	msg := wire.NewSignal(id, signal, p.wrapList(args, scope))
	for _, t := range p.visibleTransports(id) {
		p.sender.Send(msg, t)
	}
}

func (p *Publisher) visibleTransports(id string) []transport.Transport {
	if w, ok := p.wrapped[id]; ok {
		return slices.Clone(w.transports)
	}
	return p.sender.Transports()
}

func (p *Publisher) pendingFor(obj meta.Object) *pendingUpdate {
	u, ok := p.pending[obj]
	if !ok {
		u = &pendingUpdate{}
		p.pending[obj] = u
		p.pendingOrder = append(p.pendingOrder, obj)
	}
	return u
}

func (p *Publisher) dropPending(obj meta.Object) {
	if _, ok := p.pending[obj]; !ok {
		return
	}
	delete(p.pending, obj)
	if i := slices.Index(p.pendingOrder, obj); i >= 0 {
		p.pendingOrder = slices.Delete(p.pendingOrder, i, i+1)
	}
}

// markDirty records a property change that did not come through a signal.
func (p *Publisher) markDirty(obj meta.Object, property int) {
	p.pendingFor(obj).markProperty(property)
	p.scheduleFlush()
}

func (p *Publisher) scheduleFlush() {
	interval := p.config.PropertyUpdateInterval
	if interval < 0 {
		p.flush()
		return
	}
	if p.flushPending {
		return
	}
	p.flushPending = true
	if interval == 0 {
		p.loop.Post(p.flushTimeout)
		return
	}
	p.timer = p.loop.AfterFunc(interval, p.flushTimeout)
}

func (p *Publisher) flushTimeout() {
	p.flushPending = false
	p.timer = nil
	p.flush()
}

func (p *Publisher) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.flushPending = false
}

// PendingUpdates returns the number of objects with unsent changes.
func (p *Publisher) PendingUpdates() int {
	return len(p.pendingOrder)
}

// Flush sends pending changes now instead of waiting for the update interval.
func (p *Publisher) Flush() {
	p.flush()
}

// flush turns pending changes into PropertyUpdate messages. Registered
// objects go to every transport, wrapped objects only to the transports that
// can see them. Messages queue per transport and go out to idle clients.
func (p *Publisher) flush() {
	if p.closed || p.blockUpdates || len(p.pendingOrder) == 0 {
		return
	}

	var broadcast []any
	specific := make(map[transport.Transport][]any)
	var specificOrder []transport.Transport

	order := p.pendingOrder
	pending := p.pending
	p.pendingOrder = nil
	p.pending = make(map[meta.Object]*pendingUpdate)

	for _, obj := range order {
		id, ok := p.ObjectID(obj)
		if !ok {
			continue
		}
		entry := p.updateEntry(obj, id, pending[obj])
		if w, ok := p.wrapped[id]; ok {
			for _, t := range w.transports {
				if _, seen := specific[t]; !seen {
					specificOrder = append(specificOrder, t)
				}
				specific[t] = append(specific[t], entry)
			}
			continue
		}
		broadcast = append(broadcast, entry)
	}

	transports := p.sender.Transports()
	if len(broadcast) > 0 {
		msg := wire.NewPropertyUpdate(broadcast)
		for _, t := range transports {
			p.enqueue(t, msg)
		}
	}
	for _, t := range specificOrder {
		p.enqueue(t, wire.NewPropertyUpdate(specific[t]))
	}
	for _, t := range transports {
		p.sendQueued(t)
	}
}

func (p *Publisher) updateEntry(obj meta.Object, id string, u *pendingUpdate) map[string]any {
	scope := &wrapScope{parentID: id, visiting: make(map[meta.Object]struct{})}

	properties := make(map[string]any, len(u.properties))
	if typ, ok := p.typeOf(obj); ok {
		for _, index := range u.properties {
			prop := typ.Property(index)
			if prop == nil || prop.Read == nil {
				continue
			}
			properties[propertyKey(index)] = p.wrapValue(prop.Read(obj), scope)
		}
	}

	sigs := make(map[string]any, len(u.signalOrder))
	for _, signal := range u.signalOrder {
		sigs[propertyKey(signal)] = p.wrapList(u.signals[signal], scope)
	}

	return map[string]any{
		wire.KeyObject:     id,
		wire.KeySignals:    sigs,
		wire.KeyProperties: properties,
	}
}

func (p *Publisher) client(t transport.Transport) *clientState {
	cs, ok := p.clients[t]
	if !ok {
		cs = &clientState{}
		p.clients[t] = cs
	}
	return cs
}

func (p *Publisher) enqueue(t transport.Transport, msg wire.Message) {
	cs := p.client(t)
	cs.queue = append(cs.queue, msg)
}

// sendQueued transmits the queue of an idle client. The client is marked
// busy before sending so that changes triggered by the send queue up again.
func (p *Publisher) sendQueued(t transport.Transport) {
	cs, ok := p.clients[t]
	if !ok || !cs.idle || len(cs.queue) == 0 {
		return
	}
	queue := cs.queue
	cs.queue = nil
	cs.idle = false
	p.logClient(t, "IDLE", "BUSY")
	for _, msg := range queue {
		p.sender.Send(msg, t)
	}
}

// SetClientIdle records whether the client behind t is ready for the next
// property update. Becoming idle sends whatever queued up meanwhile.
func (p *Publisher) SetClientIdle(t transport.Transport, idle bool) {
	cs := p.client(t)
	if cs.idle == idle {
		return
	}
	cs.idle = idle
	if idle {
		p.logClient(t, "BUSY", "IDLE")
		p.sendQueued(t)
	} else {
		p.logClient(t, "IDLE", "BUSY")
	}
}

// ClientIdle returns true if the client behind t is idle.
func (p *Publisher) ClientIdle(t transport.Transport) bool {
	cs, ok := p.clients[t]
	return ok && cs.idle
}

// QueuedMessages returns the number of updates waiting for t to become idle.
func (p *Publisher) QueuedMessages(t transport.Transport) int {
	if cs, ok := p.clients[t]; ok {
		return len(cs.queue)
	}
	return 0
}

// SetBlockUpdates suppresses or resumes property updates. Changes keep
// accumulating while blocked and are flushed when unblocked.
func (p *Publisher) SetBlockUpdates(block bool) {
	if p.blockUpdates == block {
		return
	}
	p.blockUpdates = block
	if block {
		p.stopTimer()
		return
	}
	p.flush()
}

// BlockUpdates returns true while property updates are suppressed.
func (p *Publisher) BlockUpdates() bool {
	return p.blockUpdates
}
