package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mash-protocol/webchannel-go/pkg/log"
)

// jsonEvent is the JSONL export form of an event.
type jsonEvent struct {
	Timestamp   string                `json:"timestamp"`
	TransportID string                `json:"transportId,omitempty"`
	Direction   string                `json:"direction"`
	Layer       string                `json:"layer"`
	Category    string                `json:"category"`
	RemoteAddr  string                `json:"remoteAddr,omitempty"`
	Frame       *log.FrameEvent       `json:"frame,omitempty"`
	Message     *jsonMessage          `json:"message,omitempty"`
	StateChange *log.StateChangeEvent `json:"stateChange,omitempty"`
	Error       *log.ErrorEventData   `json:"error,omitempty"`
}

type jsonMessage struct {
	Type      string `json:"type"`
	RequestID any    `json:"requestId,omitempty"`
	Object    string `json:"object,omitempty"`
	Member    *int   `json:"member,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

func toJSONEvent(event log.Event) jsonEvent {
	je := jsonEvent{
		Timestamp:   event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		TransportID: event.TransportID,
		Direction:   event.Direction.String(),
		Layer:       event.Layer.String(),
		Category:    event.Category.String(),
		RemoteAddr:  event.RemoteAddr,
		Frame:       event.Frame,
		StateChange: event.StateChange,
		Error:       event.Error,
	}
	if msg := event.Message; msg != nil {
		je.Message = &jsonMessage{
			Type:      msg.Type.String(),
			RequestID: jsonSafe(msg.RequestID),
			Object:    msg.Object,
			Member:    msg.Member,
			Payload:   jsonSafe(msg.Payload),
		}
	}
	return je
}

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string, stdout io.Writer) error {
	if format != "jsonl" && format != "csv" {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	w := stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "csv" {
		return exportCSV(reader, w)
	}
	return exportJSONL(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	return reader.Each(func(event log.Event) error {
		if err := encoder.Encode(toJSONEvent(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "transport_id", "direction", "layer", "category", "type", "request_id", "object"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	return reader.Each(func(event log.Event) error {
		requestID, object := "", ""
		if msg := event.Message; msg != nil {
			if msg.RequestID != nil {
				requestID = fmt.Sprint(msg.RequestID)
			}
			object = msg.Object
		}
		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.TransportID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			eventLabel(event),
			requestID,
			object,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})
}
