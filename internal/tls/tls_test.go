package tls_test

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"git.netflux.io/rob/mtxdash/internal/tls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPair(t *testing.T) {
	keyPair, err := tls.GenerateKeyPair("localhost", "dashboard.example.com")
	require.NoError(t, err)
	assert.False(t, keyPair.IsZero())

	block, _ := pem.Decode(keyPair.Cert)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost", "dashboard.example.com"}, cert.DNSNames)

	cfg, err := keyPair.Config()
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(tls.MinVersion), cfg.MinVersion)
}

func TestLoadKeyPair(t *testing.T) {
	keyPair, err := tls.GenerateKeyPair("localhost")
	require.NoError(t, err)

	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certPath, keyPair.Cert, 0600))
	require.NoError(t, os.WriteFile(keyPath, keyPair.Key, 0600))

	loaded, err := tls.LoadKeyPair(certPath, keyPath)
	require.NoError(t, err)
	assert.Equal(t, keyPair, loaded)

	_, err = tls.LoadKeyPair(certPath, filepath.Join(dir, "missing.pem"))
	require.ErrorContains(t, err, "read TLS key:")

	_, err = tls.KeyPair{Cert: []byte("foo"), Key: []byte("bar")}.Config()
	require.ErrorContains(t, err, "load key pair:")
}
