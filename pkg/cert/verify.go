package cert

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"time"
)

// Verify checks that the identity is usable at now for every host.
func (id *Identity) Verify(hosts []string, now time.Time) error {
	c := id.Certificate
	if now.Before(c.NotBefore) {
		return ErrNotYetValid
	}
	if now.After(c.NotAfter) {
		return ErrExpired
	}
	if !id.Key.PublicKey.Equal(c.PublicKey) {
		return ErrKeyMismatch
	}
	for _, h := range hosts {
		if err := c.VerifyHostname(h); err != nil {
			return fmt.Errorf("%w: %s", ErrHostNotCovered, h)
		}
	}
	return nil
}

// Fingerprint returns the hex SHA-256 fingerprint of cert.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// Info is a summary of a certificate for display.
type Info struct {
	Subject     string
	DNSNames    []string
	IPAddresses []string
	NotBefore   time.Time
	NotAfter    time.Time
	Fingerprint string
}

// GetInfo extracts display information from cert.
func GetInfo(cert *x509.Certificate) *Info {
	info := &Info{
		Subject:     cert.Subject.CommonName,
		DNSNames:    cert.DNSNames,
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
		Fingerprint: Fingerprint(cert),
	}
	for _, ip := range cert.IPAddresses {
		info.IPAddresses = append(info.IPAddresses, ip.String())
	}
	return info
}
