package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mash-protocol/webchannel-go/pkg/channel"
	"github.com/mash-protocol/webchannel-go/pkg/transport"
)

// status is the body of the status endpoint.
type status struct {
	Version    string   `json:"version"`
	Objects    []string `json:"objects"`
	Transports int      `json:"transports"`
}

// newRouter mounts the WebSocket endpoint, metrics and a status endpoint.
// Channel state is only read on the channel's loop.
func newRouter(config Config, ch *channel.Channel, ws *transport.Server, reg prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Handle(config.WebSocketPath, ws)
	if config.MetricsPath != "" && reg != nil {
		r.Handle(config.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		result := make(chan status, 1)
		ch.Loop().Post(func() {
			s := status{Version: Version, Transports: len(ch.Transports())}
			for id := range ch.RegisteredObjects() {
				s.Objects = append(s.Objects, id)
			}
			slices.Sort(s.Objects)
			result <- s
		})

		select {
		case s := <-result:
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(s); err != nil && logger != nil {
				logger.Debug("status: write failed", "error", err)
			}
		case <-req.Context().Done():
		}
	})
	return r
}
