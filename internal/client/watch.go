package client

import (
	"context"
	cryptotls "crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"git.netflux.io/rob/mtxdash/internal/api"

	"github.com/gorilla/websocket"
)

const watchHandshakeTimeout = 10 * time.Second

// WatchPaths subscribes to path snapshots and prints each one until the
// context is cancelled or the server closes the connection.
func (a *App) WatchPaths(ctx context.Context) error {
	wsURL, err := watchURL(a.serverURL)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: watchHandshakeTimeout,
	}
	if a.insecureSkipVerify {
		a.logger.Warn("TLS certificate verification is DISABLED for the WebSocket connection")
		dialer.TLSClientConfig = &cryptotls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", wsURL, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	a.logger.Debug("Watching paths", "url", wsURL)

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}()

	for {
		var snapshot api.PathsSnapshot
		if err := conn.ReadJSON(&snapshot); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read snapshot: %w", err)
		}

		if err := printSnapshot(a.out, snapshot); err != nil {
			return fmt.Errorf("print snapshot: %w", err)
		}
	}
}

// watchURL converts the server URL into the URL of the WebSocket endpoint.
func watchURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.New("server URL must be http or https")
	}
	u.Path = api.WatchPathsPath

	return u.String(), nil
}
