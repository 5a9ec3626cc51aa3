package transport

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Keep-alive defaults.
const (
	// DefaultPingInterval is the default interval between pings.
	DefaultPingInterval = 30 * time.Second

	// DefaultPongTimeout is how long a ping may stay unanswered before it counts as missed.
	DefaultPongTimeout = 10 * time.Second

	// DefaultMaxMissedPongs is the number of missed pongs before the peer is considered gone.
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures ping/pong liveness monitoring.
type KeepAliveConfig struct {
	PingInterval   time.Duration `yaml:"pingInterval"`
	PongTimeout    time.Duration `yaml:"pongTimeout"`
	MaxMissedPongs int           `yaml:"maxMissedPongs"`

	// Disabled turns monitoring off.
	Disabled bool `yaml:"disabled"`
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is the worst-case time to notice a dead peer.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.MaxMissedPongs <= 0 {
		c.MaxMissedPongs = DefaultMaxMissedPongs
	}
	return c
}

// KeepAliveStats is a snapshot of keep-alive state.
type KeepAliveStats struct {
	LastPing    time.Time
	LastPong    time.Time
	RoundTrip   time.Duration
	MissedPongs int
	Sequence    uint32
}

// KeepAlive sends numbered pings and gives up on the peer after too many
// consecutive unanswered ones.
type KeepAlive struct {
	config    KeepAliveConfig
	clock     clock.Clock
	sendPing  func(seq uint32) error
	onTimeout func()

	mu         sync.Mutex
	seq        uint32
	pending    bool
	lastPing   time.Time
	lastPong   time.Time
	roundTrip  time.Duration
	missed     int
	running    bool
	stop       chan struct{}
	timeoutRan bool
}

// NewKeepAlive creates a monitor. sendPing transmits a ping carrying seq;
// onTimeout runs once when the peer is considered dead.
func NewKeepAlive(config KeepAliveConfig, clk clock.Clock, sendPing func(seq uint32) error, onTimeout func()) *KeepAlive {
	if clk == nil {
		clk = clock.New()
	}
	return &KeepAlive{
		config:    config.withDefaults(),
		clock:     clk,
		sendPing:  sendPing,
		onTimeout: onTimeout,
	}
}

// Start begins monitoring until ctx ends or Stop is called.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	if ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.stop = make(chan struct{})
	stop := ka.stop
	ka.mu.Unlock()

	go ka.run(ctx, stop)
}

// Stop ends monitoring.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stop)
}

// PongReceived records the answer to ping seq. Stale pongs are ignored.
func (ka *KeepAlive) PongReceived(seq uint32) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	now := ka.clock.Now()
	ka.lastPong = now
	if ka.pending && seq == ka.seq {
		ka.pending = false
		ka.missed = 0
		ka.roundTrip = now.Sub(ka.lastPing)
	}
}

// Stats returns the current state.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return KeepAliveStats{
		LastPing:    ka.lastPing,
		LastPong:    ka.lastPong,
		RoundTrip:   ka.roundTrip,
		MissedPongs: ka.missed,
		Sequence:    ka.seq,
	}
}

func (ka *KeepAlive) run(ctx context.Context, stop chan struct{}) {
	ticker := ka.clock.Ticker(ka.config.PingInterval)
	defer ticker.Stop()

	ka.ping()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if ka.expired() {
				ka.Stop()
				if ka.onTimeout != nil {
					ka.onTimeout()
				}
				return
			}
			ka.ping()
		}
	}
}

// expired accounts for an unanswered ping and reports whether the peer is gone.
func (ka *KeepAlive) expired() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.pending && ka.clock.Since(ka.lastPing) >= ka.config.PongTimeout {
		ka.pending = false
		ka.missed++
	}
	if ka.missed >= ka.config.MaxMissedPongs && !ka.timeoutRan {
		ka.timeoutRan = true
		return true
	}
	return false
}

func (ka *KeepAlive) ping() {
	ka.mu.Lock()
	ka.seq++
	seq := ka.seq
	ka.pending = true
	ka.lastPing = ka.clock.Now()
	ka.mu.Unlock()

	// A failed write leaves the ping pending; the timeout accounts for it.
	_ = ka.sendPing(seq)
}

// encodePingPayload puts seq into a ping's application data.
func encodePingPayload(seq uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, seq)
}

// decodePingPayload extracts the sequence echoed back in a pong.
func decodePingPayload(data []byte) (uint32, bool) {
	if len(data) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(data), true
}
