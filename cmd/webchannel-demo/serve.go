package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/mash-protocol/webchannel-go/cmd/webchannel-demo/interactive"
	"github.com/mash-protocol/webchannel-go/pkg/cert"
	"github.com/mash-protocol/webchannel-go/pkg/channel"
	"github.com/mash-protocol/webchannel-go/pkg/discovery"
	"github.com/mash-protocol/webchannel-go/pkg/examples"
	"github.com/mash-protocol/webchannel-go/pkg/log"
	"github.com/mash-protocol/webchannel-go/pkg/loop"
	"github.com/mash-protocol/webchannel-go/pkg/persistence"
	"github.com/mash-protocol/webchannel-go/pkg/transport"
)

// serveOptions holds the serve flags.
type serveOptions struct {
	configFile  string
	listen      string
	logLevel    string
	protocolLog string
	stateFile   string
	interactive bool
	simulate    bool
	advertise   bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the thermostat over WebSocket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := LoadConfig(opts.configFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				config.Listen = opts.listen
			}
			if cmd.Flags().Changed("state") {
				config.StateFile = opts.stateFile
			}
			if cmd.Flags().Changed("advertise") {
				config.Discovery.Advertise = opts.advertise
			}
			return runServe(cmd.Context(), config, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configFile, "config", "", "YAML configuration file")
	f.StringVar(&opts.listen, "listen", ":8080", "HTTP listen address")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&opts.protocolLog, "protocol-log", "", "Write protocol events to this file (CBOR)")
	f.StringVar(&opts.stateFile, "state", "", "Persist writable object properties in this JSON file")
	f.BoolVar(&opts.interactive, "interactive", false, "Start an interactive console")
	f.BoolVar(&opts.simulate, "simulate", true, "Simulate the room temperature")
	f.BoolVar(&opts.advertise, "advertise", false, "Announce the WebSocket endpoint over mDNS")
	return cmd
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func runServe(parent context.Context, config Config, opts serveOptions) (err error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level, err := parseLevel(opts.logLevel)
	if err != nil {
		return err
	}

	var console *interactive.Console
	var logOut io.Writer = os.Stderr
	if opts.interactive {
		if console, err = interactive.New(); err != nil {
			return err
		}
		logOut = console.Stdout()
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	var plog log.Logger = log.NewSlogAdapter(logger).WithLevel(slog.LevelDebug)
	if opts.protocolLog != "" {
		fileLogger, ferr := log.NewFileLogger(opts.protocolLog)
		if ferr != nil {
			return fmt.Errorf("open protocol log: %w", ferr)
		}
		defer func() { err = multierr.Append(err, fileLogger.Close()) }()
		plog = log.NewMultiLogger(plog, fileLogger)
		logger.Info("protocol logging enabled", "file", opts.protocolLog)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	l := loop.New()
	ch := channel.New(l, config.Channel,
		channel.WithLogger(logger),
		channel.WithProtocolLogger(plog),
		channel.WithMetrics(channel.NewMetrics(registry)),
	)

	thermostat := examples.NewThermostat(l)
	if err := ch.RegisterObject("thermostat", thermostat); err != nil {
		return fmt.Errorf("register thermostat: %w", err)
	}
	var store *persistence.StateStore
	if config.StateFile != "" {
		store = persistence.NewStateStore(config.StateFile)
		state, lerr := store.Load()
		if lerr != nil {
			return fmt.Errorf("load state: %w", lerr)
		}
		if rerr := persistence.Restore(ch.Publisher(), state); rerr != nil {
			logger.Warn("state partially restored", "file", config.StateFile, "error", rerr)
		} else if state != nil {
			logger.Info("state restored", "file", config.StateFile, "saved", state.SavedAt)
		}
	}
	objectIDs := slices.Collect(maps.Keys(ch.Publisher().RegisteredObjects()))
	if opts.simulate {
		thermostat.StartSimulation(config.SimulationInterval)
	}

	wsConfig := config.WebSocket
	wsConfig.Logger = logger
	wsConfig.ProtocolLogger = plog
	wsServer := transport.NewServer(transport.ServerConfig{
		WebSocket:   wsConfig,
		CheckOrigin: config.checkOrigin(),
		OnConnect: func(t *transport.WebSocket) {
			logger.Info("client connected", "transport", t.ID(), "remote", t.RemoteAddr())
			l.Post(func() {
				if err := ch.ConnectTo(t); err != nil {
					logger.Warn("rejecting client", "transport", t.ID(), "error", err)
					_ = t.Close()
				}
			})
		},
		OnDisconnect: func(t *transport.WebSocket) {
			logger.Info("client disconnected", "transport", t.ID())
		},
		Logger: logger,
	})

	httpServer := &http.Server{
		Addr:              config.Listen,
		Handler:           newRouter(config, ch, wsServer, registry, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if config.TLS.Enabled {
		id, created, terr := cert.NewFileStore(config.TLS.CertDir).LoadOrCreate(config.TLS.hosts())
		if terr != nil {
			return fmt.Errorf("tls identity: %w", terr)
		}
		httpServer.TLSConfig = id.ServerTLSConfig()
		logger.Info("tls enabled", "fingerprint", id.Fingerprint(), "expires", id.ExpiresAt(), "created", created)
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() { loopDone <- l.Run(loopCtx) }()

	httpDone := make(chan error, 1)
	go func() {
		if httpServer.TLSConfig != nil {
			httpDone <- httpServer.ListenAndServeTLS("", "")
			return
		}
		httpDone <- httpServer.ListenAndServe()
	}()
	logger.Info("serving", "listen", config.Listen, "websocket", config.WebSocketPath, "metrics", config.MetricsPath)

	var advertiser *discovery.MDNSAdvertiser
	if config.Discovery.Advertise {
		advertiser = discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{Interface: config.Discovery.Interface})
		if aerr := advertise(ctx, advertiser, config, objectIDs); aerr != nil {
			logger.Warn("mdns advertisement failed", "error", aerr)
		}
	}

	if console != nil {
		go console.Run(ctx, cancel, ch, thermostat)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case herr := <-httpDone:
		if !errors.Is(herr, http.ErrServerClosed) {
			err = fmt.Errorf("http server: %w", herr)
		}
	}

	if advertiser != nil {
		advertiser.Close()
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancelShutdown()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		err = multierr.Append(err, fmt.Errorf("http shutdown: %w", serr))
	}
	if werr := wsServer.Close(); werr != nil {
		logger.Debug("websocket shutdown", "error", werr)
	}

	stopLoop()
	<-loopDone
	thermostat.StopSimulation()
	if store != nil {
		if serr := store.Save(persistence.Capture(ch.Publisher())); serr != nil {
			err = multierr.Append(err, fmt.Errorf("save state: %w", serr))
		} else {
			logger.Info("state saved", "file", config.StateFile)
		}
	}
	ch.Close()
	l.Close()
	if console != nil {
		console.Close()
	}
	return err
}

// advertise announces the WebSocket endpoint with the registered object ids.
func advertise(ctx context.Context, a discovery.Advertiser, config Config, ids []string) error {
	info, err := config.advertisement(ids)
	if err != nil {
		return err
	}
	return a.Advertise(ctx, info)
}
