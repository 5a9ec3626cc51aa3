package channel

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mash-protocol/webchannel-go/pkg/publisher"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid channel config")

// Config configures a Channel. It maps one-to-one onto the YAML file read by
// LoadConfig; runtime collaborators are passed as options to New.
type Config struct {
	// PropertyUpdateInterval is the coalescing window for property updates.
	// Zero flushes on the next loop turn, negative values flush synchronously.
	PropertyUpdateInterval time.Duration `yaml:"propertyUpdateInterval"`

	// BlockUpdates starts the channel with property updates suppressed.
	BlockUpdates bool `yaml:"blockUpdates"`

	// SignalDelivery is "batched" (default) or "immediate".
	SignalDelivery publisher.SignalDelivery `yaml:"signalDelivery"`

	// LogMessages captures every decoded message in the protocol log.
	LogMessages bool `yaml:"logMessages"`

	// MaxTransports limits concurrently connected transports. Zero means no limit.
	MaxTransports int `yaml:"maxTransports"`
}

// DefaultConfig returns the default channel configuration.
func DefaultConfig() Config {
	return Config{
		PropertyUpdateInterval: publisher.DefaultPropertyUpdateInterval,
		SignalDelivery:         publisher.SignalDeliveryBatched,
		LogMessages:            true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxTransports < 0 {
		return fmt.Errorf("%w: maxTransports must not be negative, got %d", ErrInvalidConfig, c.MaxTransports)
	}
	if err := c.publisherConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) publisherConfig() publisher.Config {
	pc := publisher.DefaultConfig()
	pc.PropertyUpdateInterval = c.PropertyUpdateInterval
	pc.BlockUpdates = c.BlockUpdates
	pc.SignalDelivery = c.SignalDelivery
	return pc
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result.
// Durations are written as strings ("50ms").
func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parse channel config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// LoadConfig reads a YAML channel configuration from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read channel config: %w", err)
	}
	return ParseConfig(data)
}
