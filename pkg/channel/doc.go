// Package channel connects transports to a publisher.
//
// A Channel is the host end of the protocol. It keeps the list of connected
// transports, installs itself as their message handler and hands every valid
// inbound message to its publisher on the owning loop:
//
//	l := loop.New()
//	ch := channel.New(l, channel.DefaultConfig(), channel.WithLogger(logger))
//	ch.RegisterObject("thermostat", thermostat)
//
//	server := transport.NewServer(transport.ServerConfig{
//		OnConnect: func(t *transport.WebSocket) {
//			l.Post(func() { _ = ch.ConnectTo(t) })
//		},
//	})
//	go l.Run(ctx)
//
// Configuration can be read from YAML with LoadConfig. Operational logs go to
// the slog logger, decoded messages and transport lifecycle to the protocol
// logger, and counters to Prometheus through Metrics.
package channel
