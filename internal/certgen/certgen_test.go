package certgen

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseCert(t *testing.T, certPEM []byte) *x509.Certificate {
	t.Helper()
	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	return cert
}

func TestNewAuthority(t *testing.T) {
	ca, err := NewAuthority("Test CA", 24*time.Hour)
	require.NoError(t, err)

	assert.True(t, ca.Cert.IsCA)
	assert.Equal(t, "Test CA", ca.Cert.Subject.CommonName)
	assert.NotZero(t, ca.Cert.KeyUsage&x509.KeyUsageCertSign)
}

func TestIssueStation_VerifiesAsClient(t *testing.T) {
	ca, err := NewAuthority("Test CA", 24*time.Hour)
	require.NoError(t, err)

	certPEM, keyPEM, err := ca.IssueStation(" station-1 ", time.Hour)
	require.NoError(t, err)

	cert := parseCert(t, certPEM)
	assert.Equal(t, "station-1", cert.Subject.CommonName)

	pool := x509.NewCertPool()
	pool.AddCert(ca.Cert)
	_, err = cert.Verify(x509.VerifyOptions{Roots: pool, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}})
	assert.NoError(t, err)
	_, err = cert.Verify(x509.VerifyOptions{Roots: pool, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}})
	assert.Error(t, err, "station certificates must not serve")

	_, err = tls.X509KeyPair(certPEM, keyPEM)
	assert.NoError(t, err)
}

func TestIssueStation_EmptyName(t *testing.T) {
	ca, err := NewAuthority("Test CA", time.Hour)
	require.NoError(t, err)

	_, _, err = ca.IssueStation("  ", time.Hour)
	assert.Error(t, err)
}

func TestIssueServer_Hosts(t *testing.T) {
	ca, err := NewAuthority("Test CA", time.Hour)
	require.NoError(t, err)

	certPEM, _, err := ca.IssueServer([]string{"localhost", "127.0.0.1"}, time.Hour)
	require.NoError(t, err)

	cert := parseCert(t, certPEM)
	assert.Equal(t, "localhost", cert.Subject.CommonName)
	assert.Equal(t, []string{"localhost"}, cert.DNSNames)
	require.Len(t, cert.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", cert.IPAddresses[0].String())
	assert.NoError(t, cert.VerifyHostname("127.0.0.1"))

	_, _, err = ca.IssueServer(nil, time.Hour)
	assert.Error(t, err)
}

func TestWriteAndLoadAuthority(t *testing.T) {
	dir := t.TempDir()
	ca, err := NewAuthority("Test CA", time.Hour)
	require.NoError(t, err)

	certPEM, keyPEM, err := ca.PEM()
	require.NoError(t, err)
	require.NoError(t, WritePair(dir, "ca", certPEM, keyPEM))

	info, err := os.Stat(filepath.Join(dir, "ca.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadAuthority(filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key"))
	require.NoError(t, err)
	assert.True(t, loaded.Cert.Equal(ca.Cert))

	// a loaded authority still signs
	_, _, err = loaded.IssueStation("station-2", time.Hour)
	assert.NoError(t, err)
}

func TestLoadAuthority_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadAuthority(filepath.Join(dir, "missing.crt"), filepath.Join(dir, "missing.key"))
	assert.Error(t, err)

	ca, err := NewAuthority("Test CA", time.Hour)
	require.NoError(t, err)
	leafPEM, leafKey, err := ca.IssueStation("station-1", time.Hour)
	require.NoError(t, err)
	require.NoError(t, WritePair(dir, "leaf", leafPEM, leafKey))

	_, err = LoadAuthority(filepath.Join(dir, "leaf.crt"), filepath.Join(dir, "leaf.key"))
	assert.ErrorContains(t, err, "not a CA certificate")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.crt"), []byte("junk"), 0o644))
	_, err = LoadAuthority(filepath.Join(dir, "junk.crt"), filepath.Join(dir, "leaf.key"))
	assert.ErrorContains(t, err, "invalid CA cert PEM")
}
