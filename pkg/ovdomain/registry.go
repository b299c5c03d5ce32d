package ovdomain

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// fileConfig is the on-disk shape of one domain JSON file.
type fileConfig struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Default bool   `json:"default"`

	Certificate *struct {
		File      string `json:"file"`
		Key       string `json:"key"`
		Authority *struct {
			File string `json:"file"`
			Path string `json:"path"`
		} `json:"authority"`
	} `json:"certificate"`
}

// Registry owns every loaded Domain and resolves SNI names to the right
// one. Domain configuration is immutable after Load returns.
type Registry struct {
	domains       []*Domain
	byName        map[string]*Domain
	defaultDomain *Domain
}

// Load reads every *.json file in dir, builds a Domain (and TLS context)
// for each, and returns the populated Registry. Fails the whole load if
// any domain is invalid or more than one is marked default. Files are
// loaded in lexicographic filename order so that, absent an explicit
// default, the first-loaded-wins fallback is deterministic across runs.
func Load(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read domain directory %q: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	r := &Registry{byName: make(map[string]*Domain)}

	for _, name := range names {
		d, err := loadOne(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("domain file %q: %w", name, err)
		}
		if err := r.add(d); err != nil {
			return nil, fmt.Errorf("domain file %q: %w", name, err)
		}
	}

	if len(r.domains) == 0 {
		return nil, fmt.Errorf("no domains found in %q", dir)
	}

	return r, nil
}

func loadOne(path string) (*Domain, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fc fileConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if fc.Name == "" {
		return nil, fmt.Errorf("missing \"name\"")
	}

	d := &Domain{
		Name:      fc.Name,
		Path:      fc.Path,
		IsDefault: fc.Default,
	}

	if fc.Certificate != nil {
		d.CertFile = fc.Certificate.File
		d.KeyFile = fc.Certificate.Key
		if fc.Certificate.Authority != nil {
			d.CAFile = fc.Certificate.Authority.File
			d.CAPath = fc.Certificate.Authority.Path
		}
	}

	cfg, err := buildTLSConfig(d)
	if err != nil {
		return nil, err
	}
	d.tlsConfig = cfg

	return d, nil
}

func (r *Registry) add(d *Domain) error {
	if _, exists := r.byName[strings.ToLower(d.Name)]; exists {
		return fmt.Errorf("duplicate domain name %q", d.Name)
	}
	if d.IsDefault {
		if r.defaultDomain != nil {
			return fmt.Errorf("more than one default domain (%q and %q)", r.defaultDomain.Name, d.Name)
		}
		r.defaultDomain = d
	}

	r.domains = append(r.domains, d)
	r.byName[strings.ToLower(d.Name)] = d
	return nil
}

// Resolve looks up a domain by SNI name, case-insensitively. If name is
// empty, the default domain is returned, falling back to the
// first-loaded domain if none is marked default.
func (r *Registry) Resolve(name string) (*Domain, bool) {
	if name == "" {
		return r.fallback(), true
	}
	d, ok := r.byName[strings.ToLower(name)]
	return d, ok
}

func (r *Registry) fallback() *Domain {
	if r.defaultDomain != nil {
		return r.defaultDomain
	}
	return r.domains[0]
}

// Domains returns every loaded domain, in load order.
func (r *Registry) Domains() []*Domain {
	out := make([]*Domain, len(r.domains))
	copy(out, r.domains)
	return out
}

// ServerTLSConfig returns a single *tls.Config suitable for passing to a
// net/Listen-based TLS listener. Its GetConfigForClient callback
// resolves the incoming SNI name to a Domain: unknown SNI names abort
// the handshake (returning an error prevents the handshake from
// completing, the functional equivalent of a fatal TLS alert).
func (r *Registry) ServerTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		GetConfigForClient: func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
			d, ok := r.Resolve(hello.ServerName)
			if !ok {
				return nil, fmt.Errorf("unknown SNI domain %q", hello.ServerName)
			}
			cfg, hasTLS := d.TLS()
			if !hasTLS {
				return nil, fmt.Errorf("domain %q has no TLS context", d.Name)
			}
			return cfg, nil
		},
	}
}
