package webchannel_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/webchannel-go/pkg/channel"
	"github.com/mash-protocol/webchannel-go/pkg/examples"
	"github.com/mash-protocol/webchannel-go/pkg/inspect"
	"github.com/mash-protocol/webchannel-go/pkg/loop"
	"github.com/mash-protocol/webchannel-go/pkg/meta"
	"github.com/mash-protocol/webchannel-go/pkg/publisher"
	"github.com/mash-protocol/webchannel-go/pkg/transport"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// env is a running channel served over a real WebSocket listener.
type env struct {
	url        string
	loop       *loop.Loop
	ch         *channel.Channel
	thermostat *examples.Thermostat
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	config := channel.DefaultConfig()
	config.PropertyUpdateInterval = 0
	config.SignalDelivery = publisher.SignalDeliveryImmediate

	l := loop.New()
	ch := channel.New(l, config)
	th := examples.NewThermostat(l)
	require.NoError(t, ch.RegisterObject("thermostat", th))

	ws := transport.NewServer(transport.ServerConfig{
		OnConnect: func(ws *transport.WebSocket) {
			l.Post(func() { _ = ch.ConnectTo(ws) })
		},
	})
	srv := httptest.NewServer(ws)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		srv.Close()
		_ = ws.Close()
		cancel()
		<-done
		ch.Close()
		l.Close()
	})
	return &env{
		url:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		loop:       l,
		ch:         ch,
		thermostat: th,
	}
}

// onLoop runs fn on the channel's loop and waits for it.
func (e *env) onLoop(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	e.loop.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not run posted function")
	}
}

// client is one WebSocket peer speaking the protocol.
type client struct {
	ws       *transport.WebSocket
	messages chan wire.Message
	nextID   float64
}

func (c *client) MessageReceived(msg wire.Message, _ transport.Transport) { c.messages <- msg }
func (c *client) TransportClosed(transport.Transport)                     {}

func (e *env) dial(t *testing.T) *client {
	t.Helper()
	ws, err := transport.Dial(context.Background(), e.url, transport.DefaultWebSocketConfig())
	require.NoError(t, err)
	c := &client{ws: ws, messages: make(chan wire.Message, 128)}
	ws.SetHandler(c)
	t.Cleanup(func() { _ = ws.Close() })
	return c
}

// await returns the next message of type typ matching match, skipping others.
func (c *client) await(t *testing.T, typ wire.MessageType, match func(wire.Message) bool) wire.Message {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg := <-c.messages:
			if msg.Type() == typ && (match == nil || match(msg)) {
				return msg
			}
		case <-timeout:
			t.Fatalf("no matching %s message received", typ)
			return nil
		}
	}
}

// call sends a request and waits for its response data.
func (c *client) call(t *testing.T, typ wire.MessageType, fields map[string]any) any {
	t.Helper()
	c.nextID++
	id := c.nextID
	c.ws.SendMessage(wire.NewRequest(typ, id, fields))
	resp := c.await(t, wire.TypeResponse, func(m wire.Message) bool { return m[wire.KeyID] == id })
	return resp[wire.KeyData]
}

func (c *client) invoke(t *testing.T, object, method string, args ...any) any {
	t.Helper()
	if args == nil {
		args = []any{}
	}
	return c.call(t, wire.TypeInvokeMethod, map[string]any{
		wire.KeyObject: object,
		wire.KeyMethod: method,
		wire.KeyArgs:   args,
	})
}

func (c *client) init(t *testing.T) map[string]any {
	t.Helper()
	data, ok := c.call(t, wire.TypeInit, nil).(map[string]any)
	require.True(t, ok, "init returns an object map")
	c.ws.SendMessage(wire.NewRequest(wire.TypeIdle, nil, nil))
	return data
}

func isObject(id string) func(wire.Message) bool {
	return func(m wire.Message) bool {
		obj, _ := m.String(wire.KeyObject)
		return obj == id
	}
}

func TestE2E_InitDescribesRegisteredObjects(t *testing.T) {
	e := newEnv(t)
	c := e.dial(t)

	objects := c.init(t)
	info, ok := objects["thermostat"].(map[string]any)
	require.True(t, ok, "thermostat class info, got %T", objects["thermostat"])
	for _, key := range []string{wire.KeyMethods, wire.KeySignals, wire.KeyProperties, wire.KeyEnums} {
		assert.Contains(t, info, key)
	}

	described, err := inspect.DecodeInit(objects)
	require.NoError(t, err)
	require.Len(t, described, 1)
	var signatures []string
	for _, m := range described[0].Methods {
		signatures = append(signatures, m.Signature)
	}
	assert.Contains(t, signatures, "setTarget(float64,int)")
	assert.Contains(t, signatures, "createSchedule(string)")
}

func TestE2E_PropertyUpdatesReachEveryClient(t *testing.T) {
	e := newEnv(t)
	a, b := e.dial(t), e.dial(t)
	a.init(t)
	b.init(t)

	a.invoke(t, "thermostat", "setTarget", 24.5)

	for _, c := range []*client{a, b} {
		update := c.await(t, wire.TypePropertyUpdate, nil)
		entries, ok := update[wire.KeyData].([]any)
		require.True(t, ok, "update data is a list")
		require.NotEmpty(t, entries)
		entry, ok := entries[0].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "thermostat", entry[wire.KeyObject])
	}

	var target float64
	e.onLoop(t, func() { target = e.thermostat.Target() })
	assert.Equal(t, 24.5, target)
}

func TestE2E_ConnectedSignalIsForwarded(t *testing.T) {
	e := newEnv(t)
	c := e.dial(t)
	c.init(t)

	alarm := examples.ThermostatType.MustSignal("alarm")
	c.ws.SendMessage(wire.NewRequest(wire.TypeConnectToSignal, nil, map[string]any{
		wire.KeyObject: "thermostat",
		wire.KeySignal: float64(alarm),
	}))
	// A round trip orders the subscription before the emission.
	c.invoke(t, "thermostat", "schedules")

	e.onLoop(t, func() { e.thermostat.RaiseAlarm("door open") })

	sig := c.await(t, wire.TypeSignal, isObject("thermostat"))
	index, ok := sig.Int(wire.KeySignal)
	require.True(t, ok)
	assert.Equal(t, alarm, index)
	assert.Equal(t, []any{"door open"}, sig[wire.KeyArgs])
}

func TestE2E_WrappedObjectsFollowTheirTransport(t *testing.T) {
	e := newEnv(t)
	c := e.dial(t)
	c.init(t)

	ref := c.invoke(t, "thermostat", "createSchedule", "weekend")
	id, ok := wire.ObjectRefID(ref)
	require.True(t, ok, "createSchedule returns an object reference, got %v", ref)

	c.invoke(t, id, "add", "09:00", 22.0)
	assert.Equal(t, 22.0, c.invoke(t, id, "targetAt", "10:00"))

	require.NoError(t, c.ws.Close())
	require.Eventually(t, func() bool {
		found := make(chan bool, 1)
		e.loop.Post(func() {
			_, ok := e.ch.Publisher().Lookup(id)
			found <- ok
		})
		select {
		case ok := <-found:
			return !ok
		case <-time.After(time.Second):
			return false
		}
	}, 5*time.Second, 20*time.Millisecond, "wrapped object is released with its last transport")

	var transports int
	e.onLoop(t, func() { transports = len(e.ch.Transports()) })
	assert.Zero(t, transports)
}

func TestE2E_DeregisterNotifiesClients(t *testing.T) {
	e := newEnv(t)
	c := e.dial(t)
	c.init(t)

	e.onLoop(t, func() { e.ch.DeregisterObject(e.thermostat) })

	sig := c.await(t, wire.TypeSignal, isObject("thermostat"))
	index, ok := sig.Int(wire.KeySignal)
	require.True(t, ok)
	assert.Equal(t, meta.SignalDestroyed, index)

	var registered int
	e.onLoop(t, func() { registered = len(e.ch.RegisteredObjects()) })
	assert.Zero(t, registered)
}
