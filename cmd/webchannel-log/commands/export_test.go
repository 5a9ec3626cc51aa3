package commands

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/webchannel-go/pkg/log"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

func exportEvents() []log.Event {
	return []log.Event{
		{
			Timestamp:   testTime,
			TransportID: "abc12345",
			Direction:   log.DirectionIn,
			Layer:       log.LayerWire,
			Category:    log.CategoryMessage,
			Message: &log.MessageEvent{
				Type:      wire.TypeInvokeMethod,
				RequestID: 4.0,
				Object:    "thermostat",
				Payload:   map[string]any{"method": "setTarget"},
			},
		},
		{
			Timestamp:   testTime,
			TransportID: "abc12345",
			Direction:   log.DirectionOut,
			Layer:       log.LayerTransport,
			Category:    log.CategoryMessage,
			Frame:       &log.FrameEvent{Size: 42},
		},
	}
}

func TestExportToJSONL(t *testing.T) {
	path := createTestLogFile(t, exportEvents())
	outPath := filepath.Join(t.TempDir(), "out.jsonl")

	require.NoError(t, RunExport(path, "jsonl", outPath, &bytes.Buffer{}))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "2026-01-28T10:15:32.123456Z", first["timestamp"])
	assert.Equal(t, "abc12345", first["transportId"])
	assert.Equal(t, "IN", first["direction"])
	assert.Equal(t, "WIRE", first["layer"])

	msg, ok := first["message"].(map[string]any)
	require.True(t, ok, "message field, got %T", first["message"])
	assert.Equal(t, "INVOKE_METHOD", msg["type"])
	assert.Equal(t, "thermostat", msg["object"])
	assert.Equal(t, 4.0, msg["requestId"])
	assert.Equal(t, map[string]any{"method": "setTarget"}, msg["payload"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Contains(t, second, "frame")
	assert.NotContains(t, second, "message")
}

func TestExportToCSV(t *testing.T) {
	path := createTestLogFile(t, exportEvents())

	var buf bytes.Buffer
	require.NoError(t, RunExport(path, "csv", "", &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"timestamp", "transport_id", "direction", "layer", "category", "type", "request_id", "object"}, records[0])
	assert.Equal(t, []string{"2026-01-28T10:15:32.123456Z", "abc12345", "IN", "WIRE", "MESSAGE", "INVOKE_METHOD", "4", "thermostat"}, records[1])
	assert.Equal(t, "Frame", records[2][5])
	assert.Empty(t, records[2][6])
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, exportEvents())
	err := RunExport(path, "xml", "", &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("RunExport(xml) error = %v, want unknown format", err)
	}
}
