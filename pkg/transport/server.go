package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
)

// ServerConfig configures a WebSocket server.
type ServerConfig struct {
	// WebSocket configures every accepted transport.
	WebSocket WebSocketConfig

	// CheckOrigin validates the Origin header. Nil applies the same-origin policy.
	CheckOrigin func(r *http.Request) bool

	// OnConnect is called for each accepted transport before it starts reading.
	OnConnect func(t *WebSocket)

	// OnDisconnect is called after a transport closed.
	OnDisconnect func(t *WebSocket)

	// Logger for operational logging (optional).
	Logger *slog.Logger
}

// Server accepts WebSocket peers. It is an http.Handler.
type Server struct {
	config   ServerConfig
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	conns  map[*WebSocket]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a server.
func NewServer(config ServerConfig) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{SubprotocolCBOR, SubprotocolJSON},
			CheckOrigin:  config.CheckOrigin,
		},
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[*WebSocket]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the transport until it closes.
func (s *Server) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(rw, "server closed", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.debugLog("websocket: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	t := NewWebSocket(conn, s.config.WebSocket)
	s.mu.Lock()
	s.conns[t] = struct{}{}
	s.mu.Unlock()
	s.debugLog("websocket: peer connected", "transport", t.ID(), "remote", r.RemoteAddr, "codec", t.Codec().Name())

	if s.config.OnConnect != nil {
		s.config.OnConnect(t)
	}

	_ = t.Run(s.ctx)

	s.mu.Lock()
	delete(s.conns, t)
	s.mu.Unlock()
	s.debugLog("websocket: peer disconnected", "transport", t.ID())

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(t)
	}
}

// ConnectionCount returns the number of open transports.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close closes every transport and waits for their handlers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*WebSocket, 0, len(s.conns))
	for t := range s.conns {
		conns = append(conns, t)
	}
	s.mu.Unlock()

	s.cancel()

	var err error
	for _, t := range conns {
		if cerr := t.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", t.ID(), cerr))
		}
	}
	s.wg.Wait()
	return err
}

func (s *Server) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}
