package server

import (
	cryptotls "crypto/tls"
	"fmt"
	"net"

	"git.netflux.io/rob/mtxdash/internal/config"
	"git.netflux.io/rob/mtxdash/internal/tls"
)

// buildTLSConfig builds the server TLS config. It returns nil if TLS is not
// enabled.
//
// A self-signed certificate is valid for localhost, and the host part of the
// listen address if it has one.
func buildTLSConfig(cfg config.TLS, listenAddr string) (*cryptotls.Config, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	var (
		keyPair tls.KeyPair
		err     error
	)
	if cfg.SelfSigned {
		dnsNames := []string{"localhost"}
		if host, _, splitErr := net.SplitHostPort(listenAddr); splitErr == nil && host != "" && net.ParseIP(host) == nil && host != "localhost" {
			dnsNames = append(dnsNames, host)
		}

		if keyPair, err = tls.GenerateKeyPair(dnsNames...); err != nil {
			return nil, fmt.Errorf("generate TLS cert: %w", err)
		}
	} else {
		if keyPair, err = tls.LoadKeyPair(cfg.CertPath, cfg.KeyPath); err != nil {
			return nil, err
		}
	}

	return keyPair.Config()
}
