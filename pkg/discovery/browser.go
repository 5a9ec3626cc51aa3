package discovery

import (
	"cmp"
	"context"
	"net"
	"slices"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures browsing.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface.
	// Empty string means all interfaces.
	Interface string
}

// entry is a resolved DNS-SD instance.
type entry struct {
	instance string
	host     string
	port     uint16
	text     []string
	addrs    []string
}

type browseFunc func(ctx context.Context, found, removed chan<- entry) error

// MDNSBrowser finds WebChannel servers using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig
	browse browseFunc

	mu      sync.Mutex
	cancels []context.CancelFunc
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	b := &MDNSBrowser{config: config}
	b.browse = b.zeroconfBrowse
	return b
}

func (b *MDNSBrowser) clientOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		if iface, err := net.InterfaceByName(b.config.Interface); err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

func (b *MDNSBrowser) zeroconfBrowse(ctx context.Context, found, removed chan<- entry) error {
	entries := make(chan *zeroconf.ServiceEntry)
	gone := make(chan *zeroconf.ServiceEntry)
	go forward(ctx, entries, found)
	go forward(ctx, gone, removed)
	return zeroconf.Browse(ctx, ServiceType, Domain, entries, gone, b.clientOptions()...)
}

func forward(ctx context.Context, in <-chan *zeroconf.ServiceEntry, out chan<- entry) {
	for {
		select {
		case e, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- fromZeroconf(e):
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func fromZeroconf(e *zeroconf.ServiceEntry) entry {
	addrs := make([]string, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	for _, ip := range e.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range e.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return entry{
		instance: e.Instance,
		host:     e.HostName,
		port:     uint16(e.Port),
		text:     e.Text,
		addrs:    addrs,
	}
}

// toService converts e, returning nil when its TXT records are not ours.
func (e entry) toService() *Service {
	svc := &Service{
		Instance:  e.instance,
		Host:      e.host,
		Port:      e.port,
		Addresses: slices.Clone(e.addrs),
	}
	if err := DecodeTXT(StringsToTXTRecords(e.text), svc); err != nil {
		return nil
	}
	return svc
}

// Browse reports each new server once. Addresses announced later for a
// known instance are merged; an instance is forgotten when all of its
// addresses are withdrawn, so it is reported again if it comes back.
// The channel is closed when ctx is done or Stop is called.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	out := make(chan *Service)
	found := make(chan entry)
	removed := make(chan entry)

	go func() {
		defer close(out)

		services := make(map[string]*Service)
		for {
			select {
			case e := <-found:
				svc := e.toService()
				if svc == nil {
					continue
				}
				if existing, ok := services[svc.Instance]; ok {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				services[svc.Instance] = svc
				emitted := *svc
				emitted.Addresses = slices.Clone(svc.Addresses)
				select {
				case out <- &emitted:
				case <-ctx.Done():
					return
				}

			case e := <-removed:
				if existing, ok := services[e.instance]; ok {
					existing.Addresses = removeAddresses(existing.Addresses, e.addrs)
					if len(existing.Addresses) == 0 {
						delete(services, e.instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = b.browse(ctx, found, removed)
	}()

	return out, nil
}

// FindAll browses until ctx is done and returns the servers found, sorted
// by instance name. Without a deadline on ctx, BrowseTimeout applies.
func (b *MDNSBrowser) FindAll(ctx context.Context) ([]*Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, BrowseTimeout)
		defer cancel()
	}
	ch, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	var services []*Service
	for svc := range ch {
		services = append(services, svc)
	}
	slices.SortFunc(services, func(a, b *Service) int {
		return cmp.Compare(a.Instance, b.Instance)
	})
	return services, nil
}

// Stop cancels every active browse.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

// mergeAddresses adds new addresses to existing, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	for _, addr := range added {
		if !slices.Contains(existing, addr) {
			existing = append(existing, addr)
		}
	}
	return existing
}

// removeAddresses drops gone from addresses.
func removeAddresses(addresses, gone []string) []string {
	return slices.DeleteFunc(addresses, func(addr string) bool {
		return slices.Contains(gone, addr)
	})
}
