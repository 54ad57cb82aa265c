package mediaserver

import (
	"context"
	"net/http"
	"time"
)

// DefaultReadyInterval is the default polling interval used by [WaitReady].
const DefaultReadyInterval = time.Second

// WaitReady blocks until the control API responds with a 2xx status, polling
// at the given interval. It never gives up, and only returns early if the
// context is cancelled.
func (c *Client) WaitReady(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultReadyInterval
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		err := c.do(ctx, http.MethodGet, "config/paths/list", "", nil, nil, nil)
		if err == nil {
			c.logger.Info("MediaMTX API is ready", "url", c.baseURL.Redacted())
			return nil
		}
		c.logger.Info("Waiting for MediaMTX API to be ready", "err", err)

		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
