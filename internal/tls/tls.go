// Package tls builds the key pairs used to serve the API over TLS.
package tls

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"
)

// MinVersion is the minimum TLS version accepted by the server and client.
const MinVersion = cryptotls.VersionTLS13

// KeyPair holds a PEM-encoded certificate and private key.
type KeyPair struct {
	Cert []byte
	Key  []byte
}

// IsZero returns true if the key pair is empty.
func (k KeyPair) IsZero() bool {
	return len(k.Cert) == 0 && len(k.Key) == 0
}

// Config returns a server TLS config serving the key pair.
func (k KeyPair) Config() (*cryptotls.Config, error) {
	cert, err := cryptotls.X509KeyPair(k.Cert, k.Key)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}

	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{cert},
		MinVersion:   MinVersion,
		NextProtos:   []string{"h2", "http/1.1"},
	}, nil
}

// LoadKeyPair reads a PEM-encoded certificate and key from disk.
func LoadKeyPair(certPath, keyPath string) (KeyPair, error) {
	cert, err := os.ReadFile(certPath)
	if err != nil {
		return KeyPair{}, fmt.Errorf("read TLS cert: %w", err)
	}

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return KeyPair{}, fmt.Errorf("read TLS key: %w", err)
	}

	return KeyPair{Cert: cert, Key: key}, nil
}

// GenerateKeyPair generates a self-signed TLS certificate and private key.
func GenerateKeyPair(dnsNames ...string) (KeyPair, error) {
	privKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return KeyPair{}, err
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"mtxdash"},
		},
		NotBefore:             now,
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privKey.PublicKey, privKey)
	if err != nil {
		return KeyPair{}, err
	}

	var certPEM, keyPEM bytes.Buffer

	if err = pem.Encode(&certPEM, &pem.Block{Type: "CERTIFICATE", Bytes: certDER}); err != nil {
		return KeyPair{}, err
	}

	privKeyDER, err := x509.MarshalECPrivateKey(privKey)
	if err != nil {
		return KeyPair{}, err
	}

	if err := pem.Encode(&keyPEM, &pem.Block{Type: "EC PRIVATE KEY", Bytes: privKeyDER}); err != nil {
		return KeyPair{}, err
	}

	return KeyPair{
		Cert: certPEM.Bytes(),
		Key:  keyPEM.Bytes(),
	}, nil
}
