package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

func logOne(t *testing.T, level slog.Level, e Event) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	NewSlogAdapter(logger).WithLevel(level).Log(e)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse %q: %v", buf.String(), err)
	}
	return entry
}

func TestSlogAdapterFrame(t *testing.T) {
	entry := logOne(t, slog.LevelDebug, Event{
		TransportID: "t-1",
		Direction:   DirectionIn,
		Layer:       LayerTransport,
		RemoteAddr:  "10.0.0.2:5000",
		Frame:       &FrameEvent{Size: 300, Truncated: true},
	})
	if entry["transport"] != "t-1" || entry["direction"] != "IN" || entry["layer"] != "TRANSPORT" {
		t.Errorf("entry = %v", entry)
	}
	if entry["frame_size"] != float64(300) || entry["truncated"] != true {
		t.Errorf("frame attrs = %v", entry)
	}
	if entry["remote"] != "10.0.0.2:5000" {
		t.Errorf("remote = %v", entry["remote"])
	}
	if entry["level"] != "DEBUG" {
		t.Errorf("level = %v", entry["level"])
	}
}

func TestSlogAdapterMessage(t *testing.T) {
	msg := wire.NewRequest(wire.TypeSetProperty, nil, map[string]any{
		wire.KeyObject:   "counter",
		wire.KeyProperty: float64(1),
		wire.KeyValue:    float64(5),
	})
	entry := logOne(t, slog.LevelInfo, Event{
		TransportID: "t-1",
		Direction:   DirectionIn,
		Layer:       LayerWire,
		Message:     NewMessageEvent(msg),
	})
	if entry["msg_type"] != "SET_PROPERTY" {
		t.Errorf("msg_type = %v", entry["msg_type"])
	}
	if entry["object"] != "counter" || entry["member"] != float64(1) {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["msg_id"]; ok {
		t.Error("msg_id logged for a message without id")
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v", entry["level"])
	}
}

func TestSlogAdapterStateAndError(t *testing.T) {
	entry := logOne(t, slog.LevelDebug, Event{
		Category: CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntityClient,
			OldState: "BUSY",
			NewState: "IDLE",
			Reason:   "idle message",
		},
	})
	if entry["entity"] != "CLIENT" || entry["old_state"] != "BUSY" || entry["new_state"] != "IDLE" {
		t.Errorf("entry = %v", entry)
	}
	if entry["reason"] != "idle message" {
		t.Errorf("reason = %v", entry["reason"])
	}

	entry = logOne(t, slog.LevelDebug, Event{
		Category: CategoryError,
		Error:    &ErrorEventData{Layer: LayerChannel, Message: "no such object", Context: "invoke"},
	})
	if entry["error_layer"] != "CHANNEL" || entry["error_msg"] != "no such object" || entry["error_context"] != "invoke" {
		t.Errorf("entry = %v", entry)
	}
}
