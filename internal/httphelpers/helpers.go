package httphelpers

import (
	"context"
	cryptotls "crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"git.netflux.io/rob/mtxdash/internal/tls"
	"golang.org/x/net/http2"
)

const dialTimeout = 5 * time.Second

// NewH2Client creates a new HTTP/2 client for the given server URL. It is
// intended to be used for making connect requests over HTTP/2.
//
// An http:// URL uses HTTP/2 cleartext (h2c), and an https:// URL uses TLS.
func NewH2Client(ctx context.Context, serverURL string, tlsSkipVerify bool) (*http.Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		return &http.Client{
			Transport: &http2.Transport{
				AllowHTTP: true,
				DialTLSContext: func(ctx context.Context, network, addr string, _ *cryptotls.Config) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, network, addr)
				},
			},
		}, nil
	case "https":
	default:
		return nil, fmt.Errorf("unsupported scheme %q (must be http or https)", u.Scheme)
	}

	tlsConfig := &cryptotls.Config{
		MinVersion:         tls.MinVersion,
		InsecureSkipVerify: tlsSkipVerify,
		NextProtos:         []string{"h2"},
	}

	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "443")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		// Test the TLS config.
		// This returns a more meaningful error than if we wait for the RPC layer
		// to fail.
		var tlsConn *cryptotls.Conn
		tlsConn, err = cryptotls.DialWithDialer(&net.Dialer{Timeout: dialTimeout}, "tcp", addr, tlsConfig)
		if err == nil {
			tlsConn.Close() //nolint:errcheck
		}
	}()

	select {
	case <-done:
		if err != nil {
			return nil, fmt.Errorf("test TLS connection: %w", err)
		}
	case <-ctx.Done(): // Important: avoid blocking forever if the context is cancelled during startup.
		return nil, ctx.Err()
	case <-time.After(dialTimeout):
		return nil, errors.New("timed out waiting for TLS connection to be established")
	}

	transport := &http.Transport{TLSClientConfig: tlsConfig}
	if err = http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("configure HTTP/2 transport: %w", err)
	}

	return &http.Client{Transport: transport}, nil
}
