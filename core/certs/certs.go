// Package certs places the interception CA into a directory the engine reads
// it from.
package certs

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/elazarl/goproxy"
)

const (
	// CertFile is the PEM certificate browsers are told to trust.
	CertFile = "ca.crt"
	// KeyFile is the PEM private key of the CA.
	KeyFile = "ca.key"
)

// Source holds PEM material to extract. A nil Source uses the CA bundled
// with the engine.
type Source struct {
	CertPEM []byte
	KeyPEM  []byte
}

// FromFiles reads a caller-provided CA pair.
func FromFiles(certPath, keyPath string) (*Source, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate %s: %w", certPath, err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA key %s: %w", keyPath, err)
	}
	return &Source{CertPEM: certPEM, KeyPEM: keyPEM}, nil
}

// Extract writes the CA certificate and key into dir. Existing files are kept
// when src is nil so a CA a browser already trusts stays stable across runs;
// an explicit src always overwrites. A custom CA written this way therefore
// stays in dir, and later runs without a source keep using it until the
// files are removed.
func Extract(dir string, src *Source) error {
	overwrite := src != nil
	if src == nil {
		src = &Source{CertPEM: goproxy.CA_CERT, KeyPEM: goproxy.CA_KEY}
	}
	if _, err := tls.X509KeyPair(src.CertPEM, src.KeyPEM); err != nil {
		return fmt.Errorf("invalid CA material: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cert dir %s: %w", dir, err)
	}
	if err := writeFile(filepath.Join(dir, CertFile), src.CertPEM, 0o644, overwrite); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, KeyFile), src.KeyPEM, 0o600, overwrite)
}

func writeFile(path string, data []byte, perm os.FileMode, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Load reads the CA pair previously extracted into dir.
func Load(dir string) (tls.Certificate, error) {
	ca, err := tls.LoadX509KeyPair(filepath.Join(dir, CertFile), filepath.Join(dir, KeyFile))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load CA from %s: %w", dir, err)
	}
	if ca.Leaf == nil {
		if ca.Leaf, err = x509.ParseCertificate(ca.Certificate[0]); err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to parse CA certificate: %w", err)
		}
	}
	return ca, nil
}
