package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mash-protocol/webchannel-go/pkg/discovery"
	"github.com/mash-protocol/webchannel-go/pkg/transport"
)

// advertisement builds the mDNS announcement for the configured endpoint.
func (c Config) advertisement(objects []string) (*discovery.Info, error) {
	_, portStr, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen address %q: %w", c.Listen, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return nil, fmt.Errorf("%w: cannot advertise port %q", errInvalidConfig, portStr)
	}

	instance := c.Discovery.Instance
	if instance == "" {
		host, _ := os.Hostname()
		host, _, _ = strings.Cut(host, ".")
		if host == "" {
			host = "localhost"
		}
		instance = "webchannel-" + host
	}

	objects = slices.Clone(objects)
	slices.Sort(objects)
	return &discovery.Info{
		Instance:     instance,
		Port:         uint16(port),
		Path:         c.WebSocketPath,
		Subprotocols: []string{transport.SubprotocolCBOR, transport.SubprotocolJSON},
		Objects:      objects,
		Secure:       c.TLS.Enabled,
	}, nil
}

func discoverCmd() *cobra.Command {
	var (
		timeout time.Duration
		iface   string
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List WebChannel servers announced on the local network",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{Interface: iface})
			defer browser.Stop()
			services, err := browser.FindAll(ctx)
			if err != nil {
				return err
			}
			printServices(cmd.OutOrStdout(), services)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", discovery.BrowseTimeout, "How long to browse")
	cmd.Flags().StringVar(&iface, "interface", "", "Browse on this network interface only")
	return cmd
}

func printServices(w io.Writer, services []*discovery.Service) {
	if len(services) == 0 {
		fmt.Fprintln(w, "No servers found")
		return
	}
	for _, svc := range services {
		fmt.Fprintf(w, "%s  %s\n", svc.Instance, svc.URL())
		if len(svc.Subprotocols) > 0 {
			fmt.Fprintf(w, "  protocols: %s\n", strings.Join(svc.Subprotocols, ", "))
		}
		if len(svc.Objects) > 0 {
			fmt.Fprintf(w, "  objects:   %s\n", strings.Join(svc.Objects, ", "))
		}
	}
}
