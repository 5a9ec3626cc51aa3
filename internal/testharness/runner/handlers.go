package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mash-protocol/webchannel-go/internal/testharness/engine"
	"github.com/mash-protocol/webchannel-go/internal/testharness/loader"
	"github.com/mash-protocol/webchannel-go/pkg/transport"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

func (r *Runner) registerHandlers() {
	handlers := map[string]engine.ActionHandler{
		"connect":                r.handleConnect,
		"close":                  withSession(handleClose),
		"expect_disconnect":      withSession(handleExpectDisconnect),
		"init":                   withSession(handleInit),
		"idle":                   withSession(handleIdle),
		"debug":                  withSession(handleDebug),
		"invoke":                 withSession(handleInvoke),
		"expect_response":        withSession(handleExpectResponse),
		"set_property":           withSession(handleSetProperty),
		"read_property":          withSession(handleReadProperty),
		"expect_property_update": withSession(handleExpectPropertyUpdate),
		"connect_signal":         withSession(handleSubscription(wire.TypeConnectToSignal)),
		"disconnect_signal":      withSession(handleSubscription(wire.TypeDisconnectFromSignal)),
		"expect_signal":          withSession(handleExpectSignal),
		"send_raw":               withSession(handleSendRaw),
		"expect_no_message":      withSession(handleExpectNoMessage),
		"wait":                   handleWait,
	}
	for name, h := range handlers {
		r.engine.RegisterHandler(name, h)
	}
}

type sessionHandler func(ctx context.Context, s *session, step *loader.Step, state *engine.ExecutionState) (map[string]any, error)

func withSession(h sessionHandler) engine.ActionHandler {
	return func(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
		s, ok := state.Custom[sessionKey].(*session)
		if !ok {
			return nil, ErrNotConnected
		}
		return h(ctx, s, step, state)
	}
}

func (r *Runner) handleConnect(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	if old, ok := state.Custom[sessionKey].(*session); ok {
		_ = old.close()
	}

	url := stringParam(step, "url", r.config.Target)
	if url == "" {
		return nil, errors.New("connect: no target url")
	}
	protocol := strings.ToLower(stringParam(step, "protocol", r.config.Protocol))

	config := transport.DefaultWebSocketConfig()
	config.KeepAlive.Disabled = true
	config.TLSClientConfig = r.config.TLSConfig
	config.Logger = r.config.Logger
	config.ProtocolLogger = r.config.ProtocolLogger
	switch protocol {
	case ProtocolJSON:
		config.Codec = wire.JSON
	case ProtocolCBOR:
		config.Codec = wire.CBOR
	default:
		return nil, fmt.Errorf("connect: unknown protocol %q", protocol)
	}

	ws, err := transport.Dial(ctx, url, config)
	if err != nil {
		return nil, err
	}
	autoIdle := true
	if v, ok := step.Params["auto_idle"].(bool); ok {
		autoIdle = v
	}
	state.Custom[sessionKey] = newSession(ws, autoIdle)
	r.debugLog("runner: connected", "url", url, "protocol", protocol, "transport", ws.ID())
	return map[string]any{"connected": true, "protocol": protocol}, nil
}

func handleClose(_ context.Context, s *session, _ *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
	delete(state.Custom, sessionKey)
	if err := s.close(); err != nil {
		return nil, err
	}
	return map[string]any{"closed": true}, nil
}

func handleExpectDisconnect(ctx context.Context, s *session, _ *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	select {
	case <-s.closed:
		return map[string]any{"disconnected": true}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("server kept the connection open: %w", ctx.Err())
	}
}

func handleInit(ctx context.Context, s *session, _ *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	data, err := s.response(ctx, s.request(wire.TypeInit, nil))
	if err != nil {
		return nil, err
	}
	infos, err := s.learnInit(data)
	if err != nil {
		return nil, err
	}
	objects := make([]any, len(infos))
	for i, info := range infos {
		objects[i] = info.ID
	}
	return map[string]any{"objects": objects, "init": data}, nil
}

func handleIdle(_ context.Context, s *session, _ *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	s.send(wire.NewRequest(wire.TypeIdle, nil, nil))
	return map[string]any{"idle": true}, nil
}

func handleDebug(_ context.Context, s *session, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	s.send(wire.NewRequest(wire.TypeDebug, nil, map[string]any{wire.KeyData: stringParam(step, "message", "")}))
	return nil, nil
}

// handleInvoke calls a method. The method is sent as given: a plain name,
// a full signature or an index.
func handleInvoke(ctx context.Context, s *session, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	object, err := requireString(step, "object")
	if err != nil {
		return nil, err
	}
	method, ok := step.Params["method"]
	if !ok {
		return nil, fmt.Errorf("missing parameter %q", "method")
	}
	args := []any{}
	if raw, ok := step.Params["args"]; ok {
		if args, ok = raw.([]any); !ok {
			return nil, fmt.Errorf("parameter %q must be a list", "args")
		}
	}

	id := s.request(wire.TypeInvokeMethod, map[string]any{
		wire.KeyObject: object,
		wire.KeyMethod: method,
		wire.KeyArgs:   args,
	})
	if async, _ := step.Params["async"].(bool); async {
		return map[string]any{"request_id": id}, nil
	}
	data, err := s.response(ctx, id)
	if err != nil {
		return nil, err
	}
	return resultOutputs(data), nil
}

func handleExpectResponse(ctx context.Context, s *session, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	id, ok := step.Params["request_id"]
	if !ok {
		return nil, fmt.Errorf("missing parameter %q", "request_id")
	}
	data, err := s.response(ctx, id)
	if err != nil {
		return nil, err
	}
	return resultOutputs(data), nil
}

func resultOutputs(data any) map[string]any {
	out := map[string]any{"result": data}
	if wire.IsObjectRef(data) {
		id, _ := wire.ObjectRefID(data)
		out["result_object_id"] = id
	}
	return out
}

func handleSetProperty(_ context.Context, s *session, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	object, index, err := propertyParams(s, step)
	if err != nil {
		return nil, err
	}
	value, ok := step.Params["value"]
	if !ok {
		return nil, fmt.Errorf("missing parameter %q", "value")
	}
	s.send(wire.NewRequest(wire.TypeSetProperty, nil, map[string]any{
		wire.KeyObject:   object,
		wire.KeyProperty: index,
		wire.KeyValue:    value,
	}))
	return map[string]any{"sent": true}, nil
}

// handleReadProperty returns the value last reported for a property,
// either by init or by a property update.
func handleReadProperty(_ context.Context, s *session, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	object, index, err := propertyParams(s, step)
	if err != nil {
		return nil, err
	}
	s.drain()
	value, ok := s.value(object, index)
	if !ok {
		return nil, fmt.Errorf("%w: no value known for %s property %d", ErrUnknownMember, object, index)
	}
	return map[string]any{"value": value}, nil
}

func handleExpectPropertyUpdate(ctx context.Context, s *session, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	object, index, err := propertyParams(s, step)
	if err != nil {
		return nil, err
	}
	want, filter := step.Params["value"]
	e, err := s.await(ctx, func(e event) bool {
		if e.kind != eventProperty || e.object != object || e.index != index {
			return false
		}
		return !filter || engine.Match(want, e.value) == ""
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for update of %s property %d: %w", object, index, err)
	}
	return map[string]any{"value": e.value}, nil
}

func handleSubscription(t wire.MessageType) sessionHandler {
	return func(_ context.Context, s *session, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
		object, index, err := signalParams(s, step)
		if err != nil {
			return nil, err
		}
		s.send(wire.NewRequest(t, nil, map[string]any{
			wire.KeyObject: object,
			wire.KeySignal: index,
		}))
		return map[string]any{"signal_index": index}, nil
	}
}

// handleExpectSignal waits for a signal emission, delivered either as a
// Signal message or batched into a PropertyUpdate.
func handleExpectSignal(ctx context.Context, s *session, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	object, index, err := signalParams(s, step)
	if err != nil {
		return nil, err
	}
	want, filter := step.Params["args"]
	e, err := s.await(ctx, func(e event) bool {
		if e.kind != eventSignal || e.object != object || e.index != index {
			return false
		}
		return !filter || engine.Match(want, e.value) == ""
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for %s signal %d: %w", object, index, err)
	}
	return map[string]any{"args": e.value, "batched": e.msgType == wire.TypePropertyUpdate}, nil
}

// handleSendRaw sends an arbitrary message, which may be malformed on
// purpose. With await_response the response to its id is returned.
func handleSendRaw(ctx context.Context, s *session, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	raw, ok := step.Params["message"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parameter %q must be a map", "message")
	}
	s.send(wire.Message(raw))

	if await, _ := step.Params["await_response"].(bool); !await {
		return map[string]any{"sent": true}, nil
	}
	id, ok := raw[wire.KeyID]
	if !ok {
		return nil, errors.New("await_response needs a message with an id")
	}
	data, err := s.response(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"sent": true, "response": data}, nil
}

// handleExpectNoMessage fails if a message, optionally of one type, arrives
// within the duration. Messages received before the step count too.
func handleExpectNoMessage(ctx context.Context, s *session, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	d, err := durationParam(step, "duration", 200*time.Millisecond)
	if err != nil {
		return nil, err
	}
	match := func(event) bool { return true }
	if name := stringParam(step, "type", ""); name != "" {
		t, err := parseMessageType(name)
		if err != nil {
			return nil, err
		}
		match = func(e event) bool { return e.msgType == t }
	}

	waitCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	e, err := s.await(waitCtx, match)
	switch {
	case err == nil:
		return nil, fmt.Errorf("unexpected %s message", e.msgType)
	case errors.Is(err, ErrConnectionClosed):
		return nil, err
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}
	return map[string]any{"silent": true}, nil
}

func handleWait(ctx context.Context, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	d, err := durationParam(step, "duration", 100*time.Millisecond)
	if err != nil {
		return nil, err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func propertyParams(s *session, step *loader.Step) (string, int, error) {
	object, err := requireString(step, "object")
	if err != nil {
		return "", 0, err
	}
	ref, ok := step.Params["property"]
	if !ok {
		return "", 0, fmt.Errorf("missing parameter %q", "property")
	}
	index, err := s.propertyIndex(object, ref)
	return object, index, err
}

func signalParams(s *session, step *loader.Step) (string, int, error) {
	object, err := requireString(step, "object")
	if err != nil {
		return "", 0, err
	}
	ref, ok := step.Params["signal"]
	if !ok {
		return "", 0, fmt.Errorf("missing parameter %q", "signal")
	}
	index, err := s.signalIndex(object, ref)
	return object, index, err
}

func stringParam(step *loader.Step, key, def string) string {
	if v, ok := step.Params[key].(string); ok && v != "" {
		return v
	}
	return def
}

func requireString(step *loader.Step, key string) (string, error) {
	v, ok := step.Params[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing parameter %q", key)
	}
	return v, nil
}

func durationParam(step *loader.Step, key string, def time.Duration) (time.Duration, error) {
	raw, ok := step.Params[key]
	if !ok {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("parameter %q must be a duration string", key)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parameter %q: %w", key, err)
	}
	return d, nil
}

// parseMessageType accepts names like "signal", "PROPERTY_UPDATE" or
// "property-update".
func parseMessageType(name string) (wire.MessageType, error) {
	norm := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	types := []wire.MessageType{
		wire.TypeSignal, wire.TypePropertyUpdate, wire.TypeInit, wire.TypeIdle, wire.TypeDebug,
		wire.TypeInvokeMethod, wire.TypeConnectToSignal, wire.TypeDisconnectFromSignal,
		wire.TypeSetProperty, wire.TypeResponse,
	}
	if i := slices.IndexFunc(types, func(t wire.MessageType) bool { return t.String() == norm }); i >= 0 {
		return types[i], nil
	}
	return wire.TypeInvalid, fmt.Errorf("unknown message type %q", name)
}
