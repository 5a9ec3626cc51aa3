package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mash-protocol/webchannel-go/pkg/channel"
	"github.com/mash-protocol/webchannel-go/pkg/transport"
)

var errInvalidConfig = errors.New("invalid configuration")

// Config is the demo configuration file.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// WebSocketPath is the route accepting WebSocket peers.
	WebSocketPath string `yaml:"webSocketPath"`

	// MetricsPath serves Prometheus metrics. Empty disables the endpoint.
	MetricsPath string `yaml:"metricsPath"`

	// AllowedOrigins lists accepted Origin hosts. Empty applies the
	// same-origin policy; "*" accepts every origin.
	AllowedOrigins []string `yaml:"allowedOrigins"`

	// SimulationInterval is the thermostat simulation tick.
	SimulationInterval time.Duration `yaml:"simulationInterval"`

	// ShutdownTimeout bounds the graceful HTTP shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// StateFile keeps writable object properties across restarts. Empty
	// disables persistence.
	StateFile string `yaml:"stateFile"`

	TLS       TLSConfig                 `yaml:"tls"`
	Discovery DiscoveryConfig           `yaml:"discovery"`
	Channel   channel.Config            `yaml:"channel"`
	WebSocket transport.WebSocketConfig `yaml:"webSocket"`
}

// TLSConfig serves the endpoints over HTTPS with a self-signed certificate
// kept in CertDir.
type TLSConfig struct {
	Enabled bool     `yaml:"enabled"`
	CertDir string   `yaml:"certDir"`
	Hosts   []string `yaml:"hosts"`
}

// hosts returns the names the certificate must cover.
func (t TLSConfig) hosts() []string {
	if len(t.Hosts) == 0 {
		return []string{"localhost", "127.0.0.1", "::1"}
	}
	return t.Hosts
}

// DiscoveryConfig controls the mDNS announcement of the WebSocket endpoint.
type DiscoveryConfig struct {
	Advertise bool   `yaml:"advertise"`
	Instance  string `yaml:"instance"` // defaults to webchannel-<hostname>
	Interface string `yaml:"interface"`
}

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() Config {
	return Config{
		Listen:             ":8080",
		WebSocketPath:      "/ws",
		MetricsPath:        "/metrics",
		SimulationInterval: time.Second,
		ShutdownTimeout:    5 * time.Second,
		Channel:            channel.DefaultConfig(),
		WebSocket:          transport.DefaultWebSocketConfig(),
	}
}

// LoadConfig reads path on top of DefaultConfig. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen address required", errInvalidConfig)
	}
	if !strings.HasPrefix(c.WebSocketPath, "/") {
		return fmt.Errorf("%w: webSocketPath must start with /, got %q", errInvalidConfig, c.WebSocketPath)
	}
	if c.MetricsPath != "" && !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("%w: metricsPath must start with /, got %q", errInvalidConfig, c.MetricsPath)
	}
	if c.MetricsPath == c.WebSocketPath {
		return fmt.Errorf("%w: metricsPath and webSocketPath are both %q", errInvalidConfig, c.WebSocketPath)
	}
	if c.TLS.Enabled && c.TLS.CertDir == "" {
		return fmt.Errorf("%w: tls.certDir required when tls is enabled", errInvalidConfig)
	}
	if c.SimulationInterval <= 0 {
		return fmt.Errorf("%w: simulationInterval must be positive", errInvalidConfig)
	}
	return c.Channel.Validate()
}

// checkOrigin returns the Origin policy for the WebSocket upgrader, or nil
// for the same-origin default.
func (c Config) checkOrigin() func(r *http.Request) bool {
	if len(c.AllowedOrigins) == 0 {
		return nil
	}
	if slices.Contains(c.AllowedOrigins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.ContainsFunc(c.AllowedOrigins, func(allowed string) bool {
			return strings.EqualFold(allowed, u.Host)
		})
	}
}
