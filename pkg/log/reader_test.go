package log

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

func writeTrace(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.wclog")
	fl, err := NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		fl.Log(e)
	}
	require.NoError(t, fl.Close())
	return path
}

func traceFixture() []Event {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	invoke := wire.NewRequest(wire.TypeInvokeMethod, 1, map[string]any{wire.KeyObject: "counter", wire.KeyMethod: float64(4)})
	signal := wire.NewSignal("clock", 3, []any{"tick"})
	return []Event{
		{Timestamp: base, TransportID: "a", Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage, Message: NewMessageEvent(invoke)},
		{Timestamp: base.Add(time.Second), TransportID: "b", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage, Message: NewMessageEvent(signal)},
		{Timestamp: base.Add(2 * time.Second), TransportID: "a", Direction: DirectionOut, Layer: LayerTransport, Category: CategoryMessage, Frame: NewFrameEvent([]byte("{}"))},
		{Timestamp: base.Add(3 * time.Second), TransportID: "a", Layer: LayerTransport, Category: CategoryState,
			StateChange: &StateChangeEvent{Entity: StateEntityTransport, OldState: "CONNECTED", NewState: "DISCONNECTED"}},
	}
}

func readAll(t *testing.T, path string, f Filter) []Event {
	t.Helper()
	r, err := NewFilteredReader(path, f)
	require.NoError(t, err)
	defer r.Close()
	var out []Event
	require.NoError(t, r.Each(func(e Event) error {
		out = append(out, e)
		return nil
	}))
	return out
}

func TestReaderNextReturnsEOF(t *testing.T) {
	path := writeTrace(t, traceFixture()[:1])
	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderEmptyFile(t *testing.T) {
	path := writeTrace(t, nil)
	assert.Empty(t, readAll(t, path, Filter{}))
}

func TestReaderFilters(t *testing.T) {
	path := writeTrace(t, traceFixture())
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	out := DirectionOut
	transport := LayerTransport
	state := CategoryState
	signal := wire.TypeSignal
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"none", Filter{}, 4},
		{"transport id", Filter{TransportID: "a"}, 3},
		{"direction", Filter{Direction: &out}, 2},
		{"layer", Filter{Layer: &transport}, 2},
		{"category", Filter{Category: &state}, 1},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"message type", Filter{MessageType: &signal}, 1},
		{"object", Filter{Object: "counter"}, 1},
		{"combined", Filter{TransportID: "a", Direction: &out}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, readAll(t, path, tt.filter), tt.want)
		})
	}
}

func TestReaderEachStopsOnCallbackError(t *testing.T) {
	path := writeTrace(t, traceFixture())
	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	stop := errors.New("stop")
	n := 0
	err = r.Each(func(Event) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, n)
}

func TestNewReaderMissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "nope.wclog"))
	assert.Error(t, err)
}
