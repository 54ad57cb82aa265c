package server

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"git.netflux.io/rob/mtxdash/internal/api"
	"git.netflux.io/rob/mtxdash/internal/event"
	"git.netflux.io/rob/mtxdash/internal/shortid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// pathsWatcher pushes the combined path list to WebSocket subscribers after
// every refresh.
type pathsWatcher struct {
	bus       *event.Bus
	refresher Refresher
	upgrader  websocket.Upgrader
	logger    *slog.Logger

	mu          sync.Mutex
	connections map[*websocket.Conn]context.CancelFunc
}

// newPathsWatcher creates a new pathsWatcher. Browser connections are only
// accepted from allowedOrigins, or from any origin if it contains "*".
// Connections without an Origin header are always accepted.
func newPathsWatcher(bus *event.Bus, refresher Refresher, allowedOrigins []string, logger *slog.Logger) *pathsWatcher {
	return &pathsWatcher{
		bus:       bus,
		refresher: refresher,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || slices.Contains(allowedOrigins, "*") {
					return true
				}
				return slices.Contains(allowedOrigins, strings.TrimSuffix(origin, "/"))
			},
		},
		logger:      logger.With("component", "paths_watcher"),
		connections: make(map[*websocket.Conn]context.CancelFunc),
	}
}

// ServeHTTP handles incoming WebSocket connections.
func (p *pathsWatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Warn("Failed to upgrade WebSocket connection", "err", err)
		return
	}

	logger := p.logger.With("remote_addr", r.RemoteAddr, "subscriber_id", shortid.New().String())
	logger.Info("WebSocket client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	p.mu.Lock()
	p.connections[conn] = cancel
	p.mu.Unlock()

	p.handleConnection(ctx, conn, logger)

	if err := conn.Close(); err != nil {
		logger.Debug("Failed to close WebSocket connection", "err", err)
	}

	logger.Info("WebSocket client disconnected")

	p.mu.Lock()
	delete(p.connections, conn)
	p.mu.Unlock()
}

// handleConnection manages the lifecycle of a single WebSocket connection.
func (p *pathsWatcher) handleConnection(ctx context.Context, conn *websocket.Conn, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eventsC := p.bus.Register()
	defer p.bus.Deregister(eventsC)

	// The client never sends anything meaningful, but reading is required to
	// process control frames and detect disconnection.
	go func() {
		defer cancel()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					logger.Warn("WebSocket read error", "err", err)
				}
				return
			}
		}
	}()

	var last api.PathsSnapshot
	if snapshot, ok := p.refresher.Snapshot(ctx); ok {
		last = api.PathsSnapshot{Paths: snapshot.Paths, RefreshedAt: snapshot.RefreshedAt, Connected: snapshot.Connected}
		if err := p.write(conn, last); err != nil {
			logger.Warn("WebSocket write error", "err", err)
			return
		}
	}

	pingT := time.NewTicker(wsPingInterval)
	defer pingT.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingT.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				logger.Warn("WebSocket ping error", "err", err)
				return
			}
		case evt, ok := <-eventsC:
			if !ok {
				return
			}

			switch evt := evt.(type) {
			case event.MediaServerStatusChangedEvent:
				last.Connected = evt.Connected
				continue
			case event.PathsRefreshedEvent:
				last.Paths = evt.Paths
				last.RefreshedAt = evt.RefreshedAt
				last.Connected = evt.Connected
				last.Error = ""
			case event.PathsRefreshFailedEvent:
				last.Error = evt.Err.Error()
			default:
				continue
			}

			if err := p.write(conn, last); err != nil {
				logger.Warn("WebSocket write error", "err", err)
				return
			}
		}
	}
}

func (p *pathsWatcher) write(conn *websocket.Conn, snapshot api.PathsSnapshot) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}

	return conn.WriteJSON(snapshot)
}

// closeAll closes every open connection.
func (p *pathsWatcher) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cancel := range p.connections {
		cancel()
	}
}

// connectionCount returns the number of active WebSocket connections.
func (p *pathsWatcher) connectionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.connections)
}
