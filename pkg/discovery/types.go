package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

const (
	// ServiceType is the DNS-SD service type of WebChannel servers.
	ServiceType = "_webchannel._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultPort is used when Info.Port is zero.
	DefaultPort = 8080

	// DefaultPath is used when Info.Path is empty.
	DefaultPath = "/ws"

	// TXTVersion is the TXT record format written by this package.
	TXTVersion = "1"
)

// TXT record keys.
const (
	TXTKeyVersion  = "txtvers"
	TXTKeyPath     = "path"
	TXTKeyProtocol = "proto"
	TXTKeyObjects  = "objs"
	TXTKeyTLS      = "tls"
)

const (
	// BrowseTimeout is the default duration of a one-shot browse.
	BrowseTimeout = 3 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTStringLen is the limit of a single TXT string.
	MaxTXTStringLen = 255
)

var (
	ErrMissingRequired = errors.New("missing required TXT record")
	ErrUnsupported     = errors.New("unsupported TXT record version")
	ErrInvalidInstance = errors.New("invalid instance name")
	ErrInvalidPath     = errors.New("invalid endpoint path")
)

// Info describes a server to advertise.
type Info struct {
	Instance     string
	Port         uint16
	Path         string
	Subprotocols []string
	Objects      []string
	Secure       bool // served over TLS
}

// Validate checks the fields that cannot be defaulted.
func (i *Info) Validate() error {
	if i.Instance == "" {
		return ErrInvalidInstance
	}
	if i.Path != "" && i.Path[0] != '/' {
		return ErrInvalidPath
	}
	return nil
}

// Service is a discovered server.
type Service struct {
	Instance     string
	Host         string
	Port         uint16
	Addresses    []string
	Path         string
	Subprotocols []string
	Objects      []string
	Secure       bool
}

// URL returns the WebSocket URL of the service. The first address is
// preferred over the host name.
func (s *Service) URL() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	scheme := "ws://"
	if s.Secure {
		scheme = "wss://"
	}
	return scheme + net.JoinHostPort(host, strconv.Itoa(int(s.Port))) + s.Path
}

// instanceName trims name to a valid DNS label length.
func instanceName(name string) string {
	if len(name) > MaxInstanceNameLen {
		return name[:MaxInstanceNameLen]
	}
	return name
}
