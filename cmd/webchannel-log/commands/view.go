// Package commands implements the webchannel-log CLI commands.
package commands

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mash-protocol/webchannel-go/pkg/log"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// FilterFlags holds the textual filter flags shared by view and filter.
// Empty fields match everything.
type FilterFlags struct {
	Transport   string
	Object      string
	MessageType string
	TimeStart   string
	TimeEnd     string
	Layer       string
	Direction   string
	Category    string
}

// Build converts the flags into a log.Filter.
func (f FilterFlags) Build() (log.Filter, error) {
	filter := log.Filter{TransportID: f.Transport, Object: f.Object}

	if f.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, f.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if f.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, f.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if f.Layer != "" {
		l, err := ParseLayer(f.Layer)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Layer = &l
	}
	if f.Direction != "" {
		d, err := ParseDirection(f.Direction)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Direction = &d
	}
	if f.Category != "" {
		c, err := ParseCategory(f.Category)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &c
	}
	if f.MessageType != "" {
		mt, err := ParseMessageType(f.MessageType)
		if err != nil {
			return log.Filter{}, err
		}
		filter.MessageType = &mt
	}
	return filter, nil
}

// eventLabel names the payload of an event.
func eventLabel(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Message != nil:
		return event.Message.Type.String()
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// timestamp [transport] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	fmt.Fprintf(w, "%s [%s] %-3s %s %s\n",
		ts, shortenID(event.TransportID), event.Direction, event.Layer, eventLabel(event))
	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Remote: %s\n", event.RemoteAddr)
	}

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenID returns the first 8 characters of a transport ID.
func shortenID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	if msg.RequestID != nil {
		fmt.Fprintf(w, "  ID: %v\n", msg.RequestID)
	}
	if msg.Object != "" {
		fmt.Fprintf(w, "  Object: %s", msg.Object)
		if msg.Member != nil {
			fmt.Fprintf(w, "  Member: %d", *msg.Member)
		}
		fmt.Fprintln(w)
	}
	if msg.Payload != nil {
		if payload, err := json.Marshal(jsonSafe(msg.Payload)); err == nil {
			fmt.Fprintf(w, "  Payload: %s\n", payload)
		}
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// jsonSafe converts the map[any]any values CBOR decoding produces into
// map[string]any so payloads can be written as JSON.
func jsonSafe(v any) any {
	switch v := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[fmt.Sprint(k)] = jsonSafe(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = jsonSafe(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = jsonSafe(val)
		}
		return out
	default:
		return v
	}
}

// ParseLayer parses a layer name (case-insensitive).
func ParseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "channel":
		return log.LayerChannel, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or channel)", s)
	}
}

// ParseDirection parses a direction name (case-insensitive).
func ParseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state, or error)", s)
	}
}

// ParseMessageType parses a message type name such as "invoke_method" or
// "INVOKE_METHOD", or its number.
func ParseMessageType(s string) (wire.MessageType, error) {
	name := strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
	for t := wire.TypeSignal; t <= wire.TypeResponse; t++ {
		if t.String() == name || fmt.Sprint(int(t)) == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("invalid message type: %s", s)
}

// RunView prints every event matching filter.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	if err := reader.Each(func(event log.Event) error {
		formatEvent(output, event)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to read event: %w", err)
	}
	return nil
}
