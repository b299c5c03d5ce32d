package ovdomain

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeSelfSignedCert generates a throwaway self-signed cert/key pair for
// commonName and writes PEM files under dir, returning their paths.
func writeSelfSignedCert(t *testing.T, dir, commonName string) (certPath, keyPath string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		DNSNames:     []string{commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	certPath = filepath.Join(dir, commonName+".crt")
	keyPath = filepath.Join(dir, commonName+".key")

	certOut, err := os.Create(certPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, certOut.Close())

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)
	keyOut, err := os.Create(keyPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}))
	require.NoError(t, keyOut.Close())

	return certPath, keyPath
}

func writeDomainFile(t *testing.T, dir, filename string, fc fileConfig) {
	t.Helper()
	raw, err := json.Marshal(fc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), raw, 0o600))
}

func setupThreeDomains(t *testing.T, defaultName string) string {
	t.Helper()
	dir := t.TempDir()

	// File names carry an index prefix so that Load's lexicographic
	// order matches this list and openvocs.test is index 0.
	for i, name := range []string{"openvocs.test", "one.test", "two.test"} {
		certPath, keyPath := writeSelfSignedCert(t, dir, name)
		fc := fileConfig{Name: name, Default: name == defaultName}
		fc.Certificate = &struct {
			File      string `json:"file"`
			Key       string `json:"key"`
			Authority *struct {
				File string `json:"file"`
				Path string `json:"path"`
			} `json:"authority"`
		}{File: certPath, Key: keyPath}
		writeDomainFile(t, dir, fmt.Sprintf("%d-%s.json", i, name), fc)
	}

	return dir
}

func TestSNIDefaultFallback(t *testing.T) {
	dir := setupThreeDomains(t, "")

	reg, err := Load(dir)
	require.NoError(t, err)

	d, ok := reg.Resolve("")
	require.True(t, ok)
	require.Equal(t, "openvocs.test", d.Name)
}

func TestSNIExplicit(t *testing.T) {
	dir := setupThreeDomains(t, "two.test")

	reg, err := Load(dir)
	require.NoError(t, err)

	d, ok := reg.Resolve("one.test")
	require.True(t, ok)
	require.Equal(t, "one.test", d.Name)
}

func TestSNIUnknown(t *testing.T) {
	dir := setupThreeDomains(t, "two.test")

	reg, err := Load(dir)
	require.NoError(t, err)

	cfg := reg.ServerTLSConfig()
	_, err = cfg.GetConfigForClient(&tls.ClientHelloInfo{ServerName: "unknown.test"})
	require.Error(t, err)
}

func TestLoadRejectsTwoDefaults(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.test", "b.test"} {
		certPath, keyPath := writeSelfSignedCert(t, dir, name)
		fc := fileConfig{Name: name, Default: true}
		fc.Certificate = &struct {
			File      string `json:"file"`
			Key       string `json:"key"`
			Authority *struct {
				File string `json:"file"`
				Path string `json:"path"`
			} `json:"authority"`
		}{File: certPath, Key: keyPath}
		writeDomainFile(t, dir, name+".json", fc)
	}

	_, err := Load(dir)
	require.Error(t, err)
}

func TestResolveCaseInsensitive(t *testing.T) {
	dir := setupThreeDomains(t, "")
	reg, err := Load(dir)
	require.NoError(t, err)

	d, ok := reg.Resolve("ONE.TEST")
	require.True(t, ok)
	require.Equal(t, "one.test", d.Name)
}
