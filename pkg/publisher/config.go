package publisher

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mash-protocol/webchannel-go/pkg/convert"
	"github.com/mash-protocol/webchannel-go/pkg/log"
	"github.com/mash-protocol/webchannel-go/pkg/meta"
)

// DefaultPropertyUpdateInterval is the default coalescing window for property updates.
const DefaultPropertyUpdateInterval = 50 * time.Millisecond

// ErrInvalidSignalDelivery is returned for an unknown SignalDelivery name.
var ErrInvalidSignalDelivery = errors.New("invalid signal delivery mode")

// SignalDelivery selects how emissions of signals that are not property
// change notifications reach clients.
type SignalDelivery uint8

const (
	// SignalDeliveryBatched replays the latest arguments of each signal in the
	// next PropertyUpdate.
	SignalDeliveryBatched SignalDelivery = iota

	// SignalDeliveryImmediate sends one Signal message per emission.
	SignalDeliveryImmediate
)

// String returns the delivery mode name.
func (d SignalDelivery) String() string {
	switch d {
	case SignalDeliveryBatched:
		return "batched"
	case SignalDeliveryImmediate:
		return "immediate"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d SignalDelivery) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *SignalDelivery) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "", "batched":
		*d = SignalDeliveryBatched
	case "immediate":
		*d = SignalDeliveryImmediate
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSignalDelivery, text)
	}
	return nil
}

// Config configures a Publisher.
type Config struct {
	// PropertyUpdateInterval controls when pending changes are flushed.
	// Positive values coalesce changes within a timer window, zero flushes on
	// the next loop turn and negative values flush synchronously on every change.
	PropertyUpdateInterval time.Duration

	// BlockUpdates starts the publisher with updates suppressed.
	BlockUpdates bool

	// SignalDelivery selects batched or immediate signal delivery.
	SignalDelivery SignalDelivery

	// Types resolves descriptor tables for objects that do not implement meta.Typed.
	Types *meta.Registry

	// Converter converts values to and from the wire. Nil uses a converter
	// without custom types.
	Converter *convert.Converter

	// Logger for operational logging (optional).
	Logger *slog.Logger

	// ProtocolLogger receives object and client lifecycle events (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default publisher configuration.
func DefaultConfig() Config {
	return Config{
		PropertyUpdateInterval: DefaultPropertyUpdateInterval,
		SignalDelivery:         SignalDeliveryBatched,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SignalDelivery > SignalDeliveryImmediate {
		return fmt.Errorf("%w: %d", ErrInvalidSignalDelivery, c.SignalDelivery)
	}
	return nil
}
