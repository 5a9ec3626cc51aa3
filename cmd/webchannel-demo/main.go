// Command webchannel-demo publishes a simulated thermostat over WebSocket.
//
// Browsers connect to the WebSocket endpoint, request the object
// descriptions with Init and then drive the thermostat remotely: they read
// and write its properties, invoke its methods and receive its signals.
//
// Usage:
//
//	webchannel-demo serve [flags]
//	webchannel-demo discover [--timeout 3s]
//	webchannel-demo version
//
// Flags for serve:
//
//	--config string        YAML configuration file
//	--listen string        HTTP listen address (default ":8080")
//	--log-level string     Log level: debug, info, warn, error (default "info")
//	--protocol-log string  Write protocol events to this file (CBOR)
//	--interactive          Start an interactive console
//	--simulate             Simulate the room temperature (default true)
//	--advertise            Announce the endpoint over mDNS (_webchannel._tcp)
//
// Examples:
//
//	# Serve with defaults and an interactive console
//	webchannel-demo serve --interactive
//
//	# Serve wss:// with a self-signed certificate (tls.enabled in the config)
//	webchannel-demo serve --config demo.yaml --advertise
//
//	# Capture a protocol log for webchannel-log
//	webchannel-demo serve --protocol-log demo.wlog --log-level debug
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time via ldflags.
var (
	Version   = "0.1.0"
	BuildDate = "dev"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "webchannel-demo",
		Short:         "Publish a simulated thermostat over WebSocket",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), discoverCmd(), versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "webchannel-demo %s (built %s, commit %s)\n", Version, BuildDate, GitCommit)
		},
	}
}
