package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mash-protocol/webchannel-go/pkg/log"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// WebSocket subprotocols. A peer that requests none speaks JSON.
const (
	SubprotocolJSON = "webchannel.json"
	SubprotocolCBOR = "webchannel.cbor"
)

// WebSocket defaults.
const (
	DefaultSendQueueSize  = 256
	DefaultWriteTimeout   = 10 * time.Second
	DefaultMaxMessageSize = 1 << 20
)

// WebSocketConfig configures a WebSocket transport.
type WebSocketConfig struct {
	// SendQueueSize bounds outbound frames waiting for the writer. A peer
	// that falls this far behind is disconnected.
	SendQueueSize int `yaml:"sendQueueSize"`

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration `yaml:"writeTimeout"`

	// MaxMessageSize is the largest inbound frame accepted.
	MaxMessageSize int64 `yaml:"maxMessageSize"`

	// KeepAlive configures ping/pong monitoring.
	KeepAlive KeepAliveConfig `yaml:"keepAlive"`

	// TLSClientConfig is used by Dial for wss:// URLs (optional).
	TLSClientConfig *tls.Config `yaml:"-"`

	// Codec overrides subprotocol negotiation.
	Codec wire.Codec `yaml:"-"`

	// Clock drives keep-alive timing (optional).
	Clock clock.Clock `yaml:"-"`

	// Logger for operational logging (optional).
	Logger *slog.Logger `yaml:"-"`

	// ProtocolLogger receives frame and connection events (optional).
	ProtocolLogger log.Logger `yaml:"-"`
}

// DefaultWebSocketConfig returns the default configuration.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		SendQueueSize:  DefaultSendQueueSize,
		WriteTimeout:   DefaultWriteTimeout,
		MaxMessageSize: DefaultMaxMessageSize,
		KeepAlive:      DefaultKeepAliveConfig(),
	}
}

func (c WebSocketConfig) withDefaults() WebSocketConfig {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = DefaultSendQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	return c
}

// CodecForSubprotocol returns the codec negotiated by subprotocol.
func CodecForSubprotocol(subprotocol string) wire.Codec {
	if subprotocol == SubprotocolCBOR {
		return wire.CBOR
	}
	return wire.JSON
}

// WebSocket is a Transport over one WebSocket connection.
type WebSocket struct {
	id     string
	conn   *websocket.Conn
	codec  wire.Codec
	config WebSocketConfig
	ka     *KeepAlive

	send chan []byte

	mu  sync.Mutex
	box inbox

	closeOnce sync.Once
	done      chan struct{}
}

// NewWebSocket wraps an established connection. Call Run or Start to begin I/O.
func NewWebSocket(conn *websocket.Conn, config WebSocketConfig) *WebSocket {
	config = config.withDefaults()
	codec := config.Codec
	if codec == nil {
		codec = CodecForSubprotocol(conn.Subprotocol())
	}
	w := &WebSocket{
		id:     uuid.New().String(),
		conn:   conn,
		codec:  codec,
		config: config,
		send:   make(chan []byte, config.SendQueueSize),
		done:   make(chan struct{}),
	}
	if !config.KeepAlive.Disabled {
		w.ka = NewKeepAlive(config.KeepAlive, config.Clock, w.sendPing, func() {
			w.warnLog("websocket: peer stopped answering pings", "transport", w.id)
			w.Close()
		})
	}
	return w
}

// ID returns the transport id.
func (w *WebSocket) ID() string { return w.id }

// Codec returns the negotiated codec.
func (w *WebSocket) Codec() wire.Codec { return w.codec }

// RemoteAddr returns the peer address.
func (w *WebSocket) RemoteAddr() net.Addr { return w.conn.RemoteAddr() }

// Done is closed once the transport is closed.
func (w *WebSocket) Done() <-chan struct{} { return w.done }

// KeepAliveStats returns ping/pong statistics; zero when keep-alive is disabled.
func (w *WebSocket) KeepAliveStats() KeepAliveStats {
	if w.ka == nil {
		return KeepAliveStats{}
	}
	return w.ka.Stats()
}

// SetHandler installs the inbound message handler.
func (w *WebSocket) SetHandler(h Handler) {
	w.mu.Lock()
	held, closed := w.box.take(h)
	w.mu.Unlock()

	for _, msg := range held {
		h.MessageReceived(msg, w)
	}
	if closed && h != nil {
		h.TransportClosed(w)
	}
}

// SendMessage encodes msg and queues it for the writer.
func (w *WebSocket) SendMessage(msg wire.Message) {
	data, err := w.codec.Encode(msg)
	if err != nil {
		w.warnLog("websocket: dropping unencodable message", "transport", w.id, "error", err)
		w.logError("encode", err)
		return
	}

	select {
	case <-w.done:
		return
	default:
	}

	select {
	case w.send <- data:
	case <-w.done:
	default:
		w.warnLog("websocket: send queue full, closing", "transport", w.id)
		w.logError("send", ErrQueueFull)
		w.Close()
	}
}

// Start runs the transport in the background.
func (w *WebSocket) Start(ctx context.Context) {
	go func() { _ = w.Run(ctx) }()
}

// Run reads until the connection closes or ctx ends, then closes the transport.
func (w *WebSocket) Run(ctx context.Context) error {
	w.logState("", "CONNECTED", "")

	go w.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			w.Close()
		case <-w.done:
		}
	}()

	if w.ka != nil {
		w.conn.SetPongHandler(func(appData string) error {
			if seq, ok := decodePingPayload([]byte(appData)); ok {
				w.ka.PongReceived(seq)
			}
			return nil
		})
		w.ka.Start(ctx)
	}

	err := w.readLoop()
	w.Close()
	return err
}

func (w *WebSocket) readLoop() error {
	w.conn.SetReadLimit(w.config.MaxMessageSize)
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || w.isClosed() {
				return nil
			}
			w.debugLog("websocket: read failed", "transport", w.id, "error", err)
			return err
		}
		w.logFrame(log.DirectionIn, data)

		msg, err := w.codec.Decode(data)
		if err != nil {
			w.warnLog("websocket: dropping undecodable frame", "transport", w.id, "error", err)
			w.logError("decode", err)
			continue
		}
		w.deliver(msg)
	}
}

func (w *WebSocket) writeLoop() {
	frameType := websocket.TextMessage
	if w.codec.Binary() {
		frameType = websocket.BinaryMessage
	}
	for {
		select {
		case data := <-w.send:
			_ = w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
			if err := w.conn.WriteMessage(frameType, data); err != nil {
				w.debugLog("websocket: write failed", "transport", w.id, "error", err)
				w.Close()
				return
			}
			w.logFrame(log.DirectionOut, data)
		case <-w.done:
			return
		}
	}
}

func (w *WebSocket) deliver(msg wire.Message) {
	w.mu.Lock()
	h := w.box.handler
	if h == nil {
		w.box.held = append(w.box.held, msg)
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()
	h.MessageReceived(msg, w)
}

func (w *WebSocket) sendPing(seq uint32) error {
	deadline := time.Now().Add(w.config.WriteTimeout)
	return w.conn.WriteControl(websocket.PingMessage, encodePingPayload(seq), deadline)
}

// Close closes the connection and notifies the handler once.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		if w.ka != nil {
			w.ka.Stop()
		}
		deadline := time.Now().Add(time.Second)
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		if cerr := w.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
		w.logState("CONNECTED", "DISCONNECTED", "")

		w.mu.Lock()
		h := w.box.handler
		if h == nil {
			w.box.closed = true
		}
		w.mu.Unlock()
		if h != nil {
			h.TransportClosed(w)
		}
	})
	return err
}

func (w *WebSocket) isClosed() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *WebSocket) logFrame(dir log.Direction, data []byte) {
	if w.config.ProtocolLogger == nil {
		return
	}
	w.config.ProtocolLogger.Log(log.Event{
		Timestamp:   time.Now(),
		TransportID: w.id,
		Direction:   dir,
		Layer:       log.LayerTransport,
		Category:    log.CategoryMessage,
		RemoteAddr:  w.remoteAddr(),
		Frame:       log.NewFrameEvent(data),
	})
}

func (w *WebSocket) logState(oldState, newState, reason string) {
	if w.config.ProtocolLogger == nil {
		return
	}
	w.config.ProtocolLogger.Log(log.Event{
		Timestamp:   time.Now(),
		TransportID: w.id,
		Layer:       log.LayerTransport,
		Category:    log.CategoryState,
		RemoteAddr:  w.remoteAddr(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityTransport,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (w *WebSocket) logError(op string, err error) {
	if w.config.ProtocolLogger == nil {
		return
	}
	w.config.ProtocolLogger.Log(log.Event{
		Timestamp:   time.Now(),
		TransportID: w.id,
		Layer:       log.LayerTransport,
		Category:    log.CategoryError,
		RemoteAddr:  w.remoteAddr(),
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Context: op,
		},
	})
}

func (w *WebSocket) remoteAddr() string {
	if addr := w.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (w *WebSocket) debugLog(msg string, args ...any) {
	if w.config.Logger != nil {
		w.config.Logger.Debug(msg, args...)
	}
}

func (w *WebSocket) warnLog(msg string, args ...any) {
	if w.config.Logger != nil {
		w.config.Logger.Warn(msg, args...)
	}
}
