package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Advertiser announces WebChannel servers.
type Advertiser interface {
	// Advertise registers info, replacing an instance of the same name.
	Advertise(ctx context.Context, info *Info) error

	// Withdraw stops advertising the named instance.
	Withdraw(instance string) error

	// Close withdraws every instance.
	Close()
}

// AdvertiserConfig configures advertising.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface.
	// Empty string means all interfaces.
	Interface string

	// TTL overrides the record TTL. Zero keeps the zeroconf default.
	TTL time.Duration
}

// registration is an active mDNS responder.
type registration interface {
	Shutdown()
}

type registerFunc func(instance string, port int, txt []string) (registration, error)

// MDNSAdvertiser implements Advertiser using zeroconf.
type MDNSAdvertiser struct {
	config   AdvertiserConfig
	register registerFunc

	mu      sync.Mutex
	servers map[string]registration // keyed by instance name
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	a := &MDNSAdvertiser{
		config:  config,
		servers: make(map[string]registration),
	}
	a.register = a.zeroconfRegister
	return a
}

// interfaces returns the interfaces to advertise on, nil for all.
func (a *MDNSAdvertiser) interfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

func (a *MDNSAdvertiser) zeroconfRegister(instance string, port int, txt []string) (registration, error) {
	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}
	server, err := zeroconf.Register(instance, ServiceType, Domain, port, txt, a.interfaces(), opts...)
	if err != nil {
		return nil, err
	}
	return server, nil
}

// Advertise implements Advertiser.
func (a *MDNSAdvertiser) Advertise(ctx context.Context, info *Info) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := info.Validate(); err != nil {
		return err
	}

	name := instanceName(info.Instance)
	port := int(info.Port)
	if port == 0 {
		port = DefaultPort
	}
	txt := TXTRecordsToStrings(EncodeTXT(info))

	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.servers[name]; ok {
		existing.Shutdown()
		delete(a.servers, name)
	}
	server, err := a.register(name, port, txt)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", name, err)
	}
	a.servers[name] = server
	return nil
}

// Withdraw implements Advertiser. Unknown instances are ignored.
func (a *MDNSAdvertiser) Withdraw(instance string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := instanceName(instance)
	if server, ok := a.servers[name]; ok {
		server.Shutdown()
		delete(a.servers, name)
	}
	return nil
}

// Close implements Advertiser.
func (a *MDNSAdvertiser) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for name, server := range a.servers {
		server.Shutdown()
		delete(a.servers, name)
	}
}

// Instances returns the number of advertised instances.
func (a *MDNSAdvertiser) Instances() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.servers)
}

var _ Advertiser = (*MDNSAdvertiser)(nil)
