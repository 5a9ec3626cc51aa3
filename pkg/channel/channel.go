package channel

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/mash-protocol/webchannel-go/pkg/convert"
	"github.com/mash-protocol/webchannel-go/pkg/log"
	"github.com/mash-protocol/webchannel-go/pkg/loop"
	"github.com/mash-protocol/webchannel-go/pkg/meta"
	"github.com/mash-protocol/webchannel-go/pkg/publisher"
	"github.com/mash-protocol/webchannel-go/pkg/transport"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// Channel errors.
var (
	ErrUnknownTransport  = errors.New("unknown transport")
	ErrTooManyTransports = errors.New("too many transports")
	ErrClosed            = errors.New("channel closed")
)

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// WithProtocolLogger sets the protocol event logger.
func WithProtocolLogger(l log.Logger) Option {
	return func(c *Channel) { c.plog = l }
}

// WithMetrics sets the Prometheus collectors the channel reports to.
func WithMetrics(m *Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// WithRegistry sets the registry resolving descriptor tables for objects
// that do not implement meta.Typed.
func WithRegistry(r *meta.Registry) Option {
	return func(c *Channel) { c.types = r }
}

// WithConverter sets the value converter.
func WithConverter(conv *convert.Converter) Option {
	return func(c *Channel) { c.conv = conv }
}

// Channel connects transports to one Publisher.
//
// Transports deliver messages from their own goroutines; the channel posts
// each one onto its loop, where all publisher and channel state lives. Every
// method except MessageReceived and TransportClosed must be called on that loop.
type Channel struct {
	loop    *loop.Loop
	config  Config
	logger  *slog.Logger
	plog    log.Logger
	metrics *Metrics
	types   *meta.Registry
	conv    *convert.Converter

	pub        *publisher.Publisher
	transports []transport.Transport
	closed     bool
}

// New creates a channel owned by l.
func New(l *loop.Loop, config Config, opts ...Option) *Channel {
	c := &Channel{
		loop:   l,
		config: config,
	}
	for _, opt := range opts {
		opt(c)
	}

	pc := config.publisherConfig()
	pc.Types = c.types
	pc.Converter = c.conv
	pc.Logger = c.logger
	pc.ProtocolLogger = c.plog
	c.pub = publisher.New(l, c, pc)
	return c
}

// Publisher returns the channel's publisher.
func (c *Channel) Publisher() *publisher.Publisher { return c.pub }

// Loop returns the loop that owns the channel.
func (c *Channel) Loop() *loop.Loop { return c.loop }

// RegisterObject publishes obj under id.
func (c *Channel) RegisterObject(id string, obj meta.Object) error {
	err := c.pub.RegisterObject(id, obj)
	c.updateObjectMetrics()
	return err
}

// RegisterObjects publishes every object of the map under its key.
func (c *Channel) RegisterObjects(objects map[string]meta.Object) error {
	err := c.pub.RegisterObjects(objects)
	c.updateObjectMetrics()
	return err
}

// DeregisterObject withdraws obj; clients see it destroyed.
func (c *Channel) DeregisterObject(obj meta.Object) {
	c.pub.DeregisterObject(obj)
	c.updateObjectMetrics()
}

// RegisteredObjects returns a copy of the registered objects.
func (c *Channel) RegisteredObjects() map[string]meta.Object {
	return c.pub.RegisteredObjects()
}

// SetBlockUpdates suppresses or resumes property updates.
func (c *Channel) SetBlockUpdates(block bool) { c.pub.SetBlockUpdates(block) }

// BlockUpdates returns true while property updates are suppressed.
func (c *Channel) BlockUpdates() bool { return c.pub.BlockUpdates() }

// ConnectTo attaches t. Connecting a transport twice has no effect.
func (c *Channel) ConnectTo(t transport.Transport) error {
	if c.closed {
		return ErrClosed
	}
	if slices.Contains(c.transports, t) {
		return nil
	}
	if c.config.MaxTransports > 0 && len(c.transports) >= c.config.MaxTransports {
		c.metrics.dropped(DropLimit)
		return fmt.Errorf("%w: limit is %d", ErrTooManyTransports, c.config.MaxTransports)
	}

	c.transports = append(c.transports, t)
	c.pub.TransportAdded(t)
	c.metrics.setTransports(len(c.transports))
	c.logTransport(t, "", "ATTACHED")
	c.debugLog("channel: transport connected", "transport", t.ID(), "transports", len(c.transports))

	// Installing the handler may replay held messages, which are posted.
	t.SetHandler(c)
	return nil
}

// DisconnectFrom detaches t and drops everything only t could see.
func (c *Channel) DisconnectFrom(t transport.Transport) {
	i := slices.Index(c.transports, t)
	if i < 0 {
		return
	}
	c.transports = slices.Delete(c.transports, i, i+1)
	t.SetHandler(nil)
	c.pub.TransportRemoved(t)
	c.metrics.setTransports(len(c.transports))
	c.updateObjectMetrics()
	c.logTransport(t, "ATTACHED", "DETACHED")
	c.debugLog("channel: transport disconnected", "transport", t.ID(), "transports", len(c.transports))
}

// Transports returns the connected transports in connection order.
func (c *Channel) Transports() []transport.Transport {
	return slices.Clone(c.transports)
}

// Transport returns the connected transport with the given id.
func (c *Channel) Transport(id string) (transport.Transport, bool) {
	for _, t := range c.transports {
		if t.ID() == id {
			return t, true
		}
	}
	return nil, false
}

// Send delivers msg to t right away.
func (c *Channel) Send(msg wire.Message, t transport.Transport) {
	if c.closed {
		return
	}
	c.logMessage(msg, t, log.DirectionOut)
	c.metrics.sent(msg.Type())
	t.SendMessage(msg)
}

// Broadcast delivers msg to every connected transport right away.
func (c *Channel) Broadcast(msg wire.Message) {
	for _, t := range c.Transports() {
		c.Send(msg, t)
	}
}

// MessageReceived implements transport.Handler. It may be called from any
// goroutine; handling happens on the loop.
func (c *Channel) MessageReceived(msg wire.Message, from transport.Transport) {
	c.loop.Post(func() {
		c.handleMessage(msg, from)
	})
}

// TransportClosed implements transport.Handler.
func (c *Channel) TransportClosed(t transport.Transport) {
	c.loop.Post(func() {
		c.DisconnectFrom(t)
	})
}

func (c *Channel) handleMessage(msg wire.Message, from transport.Transport) {
	if c.closed {
		c.metrics.dropped(DropClosed)
		return
	}
	if !slices.Contains(c.transports, from) {
		c.metrics.dropped(DropUnknownTransport)
		c.warnLog("channel: dropping message from unknown transport",
			"transport", from.ID(), "error", ErrUnknownTransport)
		return
	}
	if err := msg.Validate(); err != nil {
		c.metrics.dropped(DropMalformed)
		c.warnLog("channel: dropping invalid message", "transport", from.ID(), "error", err)
		return
	}

	typ := msg.Type()
	c.logMessage(msg, from, log.DirectionIn)
	c.metrics.received(typ)

	clk := c.loop.Clock()
	start := clk.Now()
	c.pub.HandleMessage(msg, from)
	c.metrics.observeHandle(typ, clk.Since(start).Seconds())
	c.updateObjectMetrics()
}

// Close detaches every transport and stops the publisher. Transports
// themselves stay open; their owners close them.
func (c *Channel) Close() {
	if c.closed {
		return
	}
	for _, t := range c.transports {
		t.SetHandler(nil)
	}
	c.transports = nil
	c.pub.Close()
	c.closed = true
	c.metrics.setTransports(0)
	c.debugLog("channel: closed")
}

// Closed returns true after Close.
func (c *Channel) Closed() bool { return c.closed }

func (c *Channel) updateObjectMetrics() {
	if c.metrics != nil {
		c.metrics.setObjects(len(c.pub.RegisteredObjects()), c.pub.WrappedObjectCount())
	}
}

func (c *Channel) logMessage(msg wire.Message, t transport.Transport, dir log.Direction) {
	if c.plog == nil || !c.config.LogMessages {
		return
	}
	c.plog.Log(log.Event{
		Timestamp:   time.Now(),
		TransportID: t.ID(),
		Direction:   dir,
		Layer:       log.LayerWire,
		Category:    log.CategoryMessage,
		Message:     log.NewMessageEvent(msg),
	})
}

func (c *Channel) logTransport(t transport.Transport, oldState, newState string) {
	if c.plog == nil {
		return
	}
	c.plog.Log(log.Event{
		Timestamp:   time.Now(),
		TransportID: t.ID(),
		Layer:       log.LayerChannel,
		Category:    log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityTransport,
			OldState: oldState,
			NewState: newState,
		},
	})
}

func (c *Channel) debugLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Channel) warnLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

// Compile-time interface satisfaction checks.
var (
	_ publisher.Sender  = (*Channel)(nil)
	_ transport.Handler = (*Channel)(nil)
)
