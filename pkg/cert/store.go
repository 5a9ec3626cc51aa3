package cert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	certFile = "server.pem"
	keyFile  = "server.key"
)

// ErrCertNotFound is returned by Load when no identity is stored.
var ErrCertNotFound = errors.New("certificate not found")

// FileStore keeps one identity as PEM files in a directory.
type FileStore struct {
	dir string
	now func() time.Time
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, now: time.Now}
}

// CertPath returns the path of the certificate file.
func (s *FileStore) CertPath() string { return filepath.Join(s.dir, certFile) }

// KeyPath returns the path of the key file.
func (s *FileStore) KeyPath() string { return filepath.Join(s.dir, keyFile) }

// Load reads the stored identity.
func (s *FileStore) Load() (*Identity, error) {
	certData, err := os.ReadFile(s.CertPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	keyData, err := os.ReadFile(s.KeyPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}

	c, err := DecodeCertPEM(certData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.CertPath(), err)
	}
	key, err := DecodeKeyPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.KeyPath(), err)
	}
	return &Identity{Certificate: c, Key: key}, nil
}

// Save writes id, replacing any stored identity.
func (s *FileStore) Save(id *Identity) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create certificate directory: %w", err)
	}
	keyData, err := EncodeKeyPEM(id.Key)
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}
	if err := writePEM(s.KeyPath(), keyData, 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	if err := writePEM(s.CertPath(), EncodeCertPEM(id.Certificate), 0o644); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}
	return nil
}

// LoadOrCreate returns the stored identity if it is valid for hosts and
// outside the renewal window. Otherwise it generates and stores a new
// self-signed identity. created reports whether that happened.
func (s *FileStore) LoadOrCreate(hosts []string) (id *Identity, created bool, err error) {
	now := s.now()
	id, err = s.Load()
	switch {
	case errors.Is(err, ErrCertNotFound):
	case err != nil:
		return nil, false, err
	case id.Verify(hosts, now) == nil && !id.NeedsRenewal(now):
		return id, false, nil
	}

	id, err = GenerateSelfSigned(hosts, DefaultValidity, now)
	if err != nil {
		return nil, false, err
	}
	if err := s.Save(id); err != nil {
		return nil, false, err
	}
	return id, true, nil
}
