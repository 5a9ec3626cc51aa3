package log

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLoggerWritesReadableEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.wclog")
	fl, err := NewFileLogger(path)
	require.NoError(t, err)

	fl.Log(Event{TransportID: "t1", Category: CategoryState,
		StateChange: &StateChangeEvent{Entity: StateEntityTransport, NewState: "CONNECTED"}})
	fl.Log(Event{TransportID: "t1", Category: CategoryError,
		Error: &ErrorEventData{Layer: LayerChannel, Message: "boom", Context: "invoke"}})
	require.NoError(t, fl.Close())

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	var got []Event
	require.NoError(t, r.Each(func(e Event) error {
		got = append(got, e)
		return nil
	}))
	require.Len(t, got, 2)
	assert.Equal(t, "CONNECTED", got[0].StateChange.NewState)
	assert.Equal(t, "boom", got[1].Error.Message)
	assert.Equal(t, LayerChannel, got[1].Error.Layer)
}

func TestFileLoggerFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.wclog")
	fl, err := NewFileLogger(path)
	require.NoError(t, err)
	defer fl.Close()

	fl.Log(Event{TransportID: "t1"})
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size(), "event written before flush")

	require.NoError(t, fl.Flush())
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.wclog")
	for _, id := range []string{"first", "second"} {
		fl, err := NewFileLogger(path)
		require.NoError(t, err)
		fl.Log(Event{TransportID: id})
		require.NoError(t, fl.Close())
	}

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	var ids []string
	require.NoError(t, r.Each(func(e Event) error {
		ids = append(ids, e.TransportID)
		return nil
	}))
	assert.Equal(t, []string{"first", "second"}, ids)
}

func TestFileLoggerCloseIsIdempotent(t *testing.T) {
	fl, err := NewFileLogger(filepath.Join(t.TempDir(), "trace.wclog"))
	require.NoError(t, err)
	require.NoError(t, fl.Close())
	require.NoError(t, fl.Close())
	fl.Log(Event{}) // ignored after close
	assert.NoError(t, fl.Flush())
}

func TestFileLoggerConcurrentUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.wclog")
	fl, err := NewFileLogger(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				fl.Log(Event{TransportID: "t", Layer: LayerWire})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, fl.Close())

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	n := 0
	require.NoError(t, r.Each(func(Event) error { n++; return nil }))
	assert.Equal(t, 400, n)
}

func TestNewFileLoggerBadPath(t *testing.T) {
	_, err := NewFileLogger(filepath.Join(t.TempDir(), "missing", "trace.wclog"))
	assert.Error(t, err)
}
