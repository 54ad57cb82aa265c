package server

import (
	"cmp"
	"context"
	cryptotls "crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"git.netflux.io/rob/mtxdash/internal/bootstrap"
	"git.netflux.io/rob/mtxdash/internal/config"
	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/event"
	"git.netflux.io/rob/mtxdash/internal/globalconfig"
	"git.netflux.io/rob/mtxdash/internal/mediaserver"
	"git.netflux.io/rob/mtxdash/internal/mtxmetrics"
	"git.netflux.io/rob/mtxdash/internal/reconcile"
	"git.netflux.io/rob/mtxdash/internal/refresher"
	"git.netflux.io/rob/mtxdash/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
	readyInterval     = time.Second
)

// App is an instance of the server app.
type App struct {
	cfg          config.Config
	listenerFunc ListenerFunc
	bootstrap    bool
	buildInfo    domain.BuildInfo
	logger       *slog.Logger
}

// Params holds the parameters for running the application.
type Params struct {
	Config       config.Config
	ListenerFunc ListenerFunc // defaults to a TCP listener on Config.ListenAddr
	Bootstrap    bool         // sync the store to the media server on startup
	BuildInfo    domain.BuildInfo
	Logger       *slog.Logger
}

// New creates a new application instance.
func New(params Params) *App {
	listenerFunc := params.ListenerFunc
	if listenerFunc == nil {
		listenerFunc = Listener(cmp.Or(params.Config.ListenAddr, config.DefaultListenAddr))
	}

	return &App{
		cfg:          params.Config,
		listenerFunc: listenerFunc,
		bootstrap:    params.Bootstrap,
		buildInfo:    params.BuildInfo,
		logger:       params.Logger,
	}
}

// Run starts the application, and blocks until the context is cancelled or
// the HTTP server exits.
func (a *App) Run(ctx context.Context) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)

	st, err := store.Open(ctx, a.cfg.Database.Path, a.logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	mtxClient, err := a.newMediaServerClient(registry)
	if err != nil {
		return err
	}

	tlsConfig, err := buildTLSConfig(a.cfg.TLS, a.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("build TLS config: %w", err)
	}

	bus := event.NewBus(a.logger.With("component", "event_bus"))
	pathEngine := reconcile.NewEngine(reconcile.NewEngineParams{
		MediaServer: mtxClient,
		Store:       st,
		Logger:      a.logger,
	})
	refr := refresher.New(refresher.NewParams{
		Engine:   pathEngine,
		Bus:      bus,
		Interval: a.cfg.Refresh.Interval,
		Logger:   a.logger,
	})
	watcher := newPathsWatcher(bus, refr, a.cfg.CORS.AllowedOrigins, a.logger)

	handler := newHandler(handlerParams{
		server: &Server{
			paths: pathEngine,
			config: globalconfig.NewEngine(globalconfig.NewEngineParams{
				MediaServer: mtxClient,
				Store:       st,
				Logger:      a.logger,
			}),
			sessions: mtxClient,
			metrics: mtxmetrics.NewScraper(mtxmetrics.NewScraperParams{
				URL:    a.cfg.MediaMTX.MetricsURL,
				Logger: a.logger,
			}),
			refresher: refr,
			logger:    a.logger.With("component", "server"),
		},
		watcher:        watcher,
		store:          st,
		registry:       registry,
		allowedOrigins: a.cfg.CORS.AllowedOrigins,
		logger:         a.logger.With("component", "server"),
	})

	lis, err := a.listenerFunc()
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return refr.Run(ctx)
	})

	if a.bootstrap {
		g.Go(func() error {
			a.runBootstrap(ctx, mtxClient, st)
			refr.Refresh()
			return nil
		})
	}

	g.Go(func() error {
		return a.serve(ctx, lis, handler, tlsConfig, watcher)
	})

	return g.Wait()
}

// Bootstrap pushes the stored configuration to the media server, and exits.
func (a *App) Bootstrap(ctx context.Context) error {
	st, err := store.Open(ctx, a.cfg.Database.Path, a.logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	mtxClient, err := a.newMediaServerClient(nil)
	if err != nil {
		return err
	}

	return a.newBootstrapper(mtxClient, st).Run(ctx)
}

func (a *App) runBootstrap(ctx context.Context, mtxClient *mediaserver.Client, st *store.Store) {
	if err := a.newBootstrapper(mtxClient, st).Run(ctx); err != nil && ctx.Err() == nil {
		// The server keeps running: stored paths can be re-synced individually.
		a.logger.Error("Initial sync failed", "err", err)
	}
}

func (a *App) newBootstrapper(mtxClient *mediaserver.Client, st *store.Store) *bootstrap.Bootstrapper {
	return bootstrap.New(bootstrap.NewParams{
		MediaServer:   mtxClient,
		Store:         st,
		ReadyInterval: readyInterval,
		Logger:        a.logger,
	})
}

func (a *App) newMediaServerClient(reg prometheus.Registerer) (*mediaserver.Client, error) {
	var metrics *mediaserver.RequestMetrics
	if reg != nil {
		metrics = mediaserver.NewRequestMetrics(reg)
	}

	client, err := mediaserver.NewClient(mediaserver.NewClientParams{
		APIURL:   a.cfg.MediaMTX.APIURL,
		Username: a.cfg.MediaMTX.Username,
		Password: a.cfg.MediaMTX.Password,
		Timeout:  a.cfg.MediaMTX.Timeout,
		Metrics:  metrics,
		Logger:   a.logger.With("component", "mediaserver"),
	})
	if err != nil {
		return nil, fmt.Errorf("create media server client: %w", err)
	}

	return client, nil
}

// serve serves HTTP on the listener until the context is cancelled, and then
// shuts down gracefully. Without TLS, HTTP/2 is served in cleartext (h2c).
func (a *App) serve(ctx context.Context, lis net.Listener, handler http.Handler, tlsConfig *cryptotls.Config, watcher *pathsWatcher) error {
	if tlsConfig == nil {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	srv := &http.Server{
		Handler:           handler,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(a.logger.Handler(), slog.LevelWarn),
	}

	serveErrC := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server started", "addr", lis.Addr().String(), "tls", tlsConfig != nil, "version", a.buildInfo.Version)

		if tlsConfig != nil {
			serveErrC <- srv.ServeTLS(lis, "", "")
		} else {
			serveErrC <- srv.Serve(lis)
		}
	}()

	select {
	case err := <-serveErrC:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not closed by Shutdown.
	watcher.closeAll()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown failed", "err", err)
	}

	if err := <-serveErrC; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}

	a.logger.Info("HTTP server stopped")

	return nil
}
