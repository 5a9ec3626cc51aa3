package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"
)

const (
	// DefaultValidity is the lifetime of generated certificates.
	DefaultValidity = 365 * 24 * time.Hour

	// RenewalWindow is how long before expiry a certificate is replaced.
	RenewalWindow = 30 * 24 * time.Hour

	organization = "WebChannel"
)

var (
	ErrNoHosts        = errors.New("at least one host is required")
	ErrExpired        = errors.New("certificate expired")
	ErrNotYetValid    = errors.New("certificate not yet valid")
	ErrKeyMismatch    = errors.New("private key does not match certificate")
	ErrHostNotCovered = errors.New("certificate does not cover host")
)

// Identity is a server certificate with its private key.
type Identity struct {
	Certificate *x509.Certificate
	Key         *ecdsa.PrivateKey
}

// GenerateSelfSigned creates a self-signed identity for hosts, which may be
// DNS names or IP addresses. The first host becomes the common name.
func GenerateSelfSigned(hosts []string, validity time.Duration, now time.Time) (*Identity, error) {
	if len(hosts) == 0 {
		return nil, ErrNoHosts
	}
	if validity <= 0 {
		validity = DefaultValidity
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   hosts[0],
			Organization: []string{organization},
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &Identity{Certificate: cert, Key: key}, nil
}

// TLSCertificate returns the identity in the form tls.Config expects.
func (id *Identity) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{id.Certificate.Raw},
		PrivateKey:  id.Key,
		Leaf:        id.Certificate,
	}
}

// ServerTLSConfig returns a TLS configuration serving the identity.
func (id *Identity) ServerTLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{id.TLSCertificate()},
		MinVersion:   tls.VersionTLS12,
	}
}

// CertPool returns a pool trusting the identity, for clients of a
// self-signed server.
func (id *Identity) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(id.Certificate)
	return pool
}

// ExpiresAt returns the end of the validity period.
func (id *Identity) ExpiresAt() time.Time {
	return id.Certificate.NotAfter
}

// NeedsRenewal reports whether the certificate expires within RenewalWindow of now.
func (id *Identity) NeedsRenewal(now time.Time) bool {
	return now.Add(RenewalWindow).After(id.Certificate.NotAfter)
}

// Fingerprint returns the hex SHA-256 fingerprint of the certificate.
func (id *Identity) Fingerprint() string {
	return Fingerprint(id.Certificate)
}
