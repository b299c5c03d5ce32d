package ovdomain

import (
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
)

// loadClientCAs builds a cert pool from a single CA bundle file and/or a
// directory of PEM files, mirroring OpenSSL's SSL_CTX_load_verify_locations
// semantics (either or both may be set).
func loadClientCAs(file, dir string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	found := false

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("no certificates found in CA file %q", file)
		}
		found = true
	}

	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read CA directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				continue
			}
			if pool.AppendCertsFromPEM(data) {
				found = true
			}
		}
	}

	if !found {
		return nil, fmt.Errorf("no usable CA certificates in %q / %q", file, dir)
	}

	return pool, nil
}
