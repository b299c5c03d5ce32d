// Package ovdomain implements the domain registry: it loads one TLS
// virtual-host configuration per JSON file from a directory, builds a
// server TLS context per domain, and resolves SNI names to the matching
// context at handshake time.
package ovdomain

import (
	"crypto/tls"
	"fmt"
)

// Domain is one virtual host: a name, an optional document root, and the
// TLS materials serving it. At most one Domain in a Registry may be the
// default. The TLS config is exclusively owned by the Domain.
type Domain struct {
	Name      string
	Path      string
	IsDefault bool

	CertFile string
	KeyFile  string
	CAFile   string
	CAPath   string

	tlsConfig *tls.Config // nil for a plaintext-only domain
}

// TLS returns the domain's server TLS config and whether it is TLS-capable.
// A domain with no certificate/key pair serves plaintext only (e.g. an
// ACME http-01 challenge document root).
func (d *Domain) TLS() (*tls.Config, bool) {
	return d.tlsConfig, d.tlsConfig != nil
}

func buildTLSConfig(d *Domain) (*tls.Config, error) {
	if d.CertFile == "" && d.KeyFile == "" {
		return nil, nil
	}
	if d.CertFile == "" || d.KeyFile == "" {
		return nil, fmt.Errorf("domain %q: certificate and key must both be set or both empty", d.Name)
	}

	cert, err := tls.LoadX509KeyPair(d.CertFile, d.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("domain %q: load cert/key: %w", d.Name, err)
	}

	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}

	if d.CAFile != "" || d.CAPath != "" {
		pool, err := loadClientCAs(d.CAFile, d.CAPath)
		if err != nil {
			return nil, fmt.Errorf("domain %q: load CA: %w", d.Name, err)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	}

	return cfg, nil
}
