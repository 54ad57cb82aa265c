package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	connectcors "connectrpc.com/cors"
	"git.netflux.io/rob/mtxdash/internal/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

const healthzTimeout = 2 * time.Second

// Pinger checks the local store is reachable.
type Pinger interface {
	Ping(context.Context) error
}

// handlerParams holds the dependencies of the HTTP handler.
type handlerParams struct {
	server         *Server
	watcher        *pathsWatcher
	store          Pinger
	registry       *prometheus.Registry
	allowedOrigins []string
	logger         *slog.Logger
}

// newHandler builds the root HTTP handler, serving the RPC procedures, the
// WebSocket watch endpoint, metrics and health checks.
func newHandler(params handlerParams) http.Handler {
	mux := http.NewServeMux()

	params.server.register(
		mux,
		connect.WithInterceptors(newObservabilityInterceptor(newRPCMetrics(params.registry), params.logger)),
	)
	mux.Handle("GET "+api.WatchPathsPath, params.watcher)
	mux.Handle("GET /metrics", promhttp.HandlerFor(params.registry, promhttp.HandlerOpts{}))
	mux.Handle("GET /healthz", handleHealthz(params.store, params.logger))

	return withCORS(mux, params.allowedOrigins)
}

func handleHealthz(store Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthzTimeout)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			logger.Error("Health check failed", "err", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Service Unavailable")) //nolint:errcheck
			return
		}

		w.Write([]byte("OK")) //nolint:errcheck
	}
}

// withCORS allows browser dashboards served from allowedOrigins to call the
// API.
func withCORS(h http.Handler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		return h
	}

	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: connectcors.AllowedMethods(),
		AllowedHeaders: connectcors.AllowedHeaders(),
		ExposedHeaders: connectcors.ExposedHeaders(),
		MaxAge:         7200,
	}).Handler(h)
}
