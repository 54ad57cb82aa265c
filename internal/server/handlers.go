package server

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"connectrpc.com/connect"
	"git.netflux.io/rob/mtxdash/internal/api"
	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/globalconfig"
	"git.netflux.io/rob/mtxdash/internal/mtxmetrics"
	"git.netflux.io/rob/mtxdash/internal/refresher"
)

// PathEngine reconciles the path views.
type PathEngine interface {
	ListCombined(context.Context) ([]domain.CombinedPath, error)
	Create(context.Context, domain.PathConf) (domain.PathRecord, error)
	Sync(context.Context, string) (domain.PathRecord, error)
	Remove(context.Context, string) error
	Toggle(context.Context, string, bool) error
	GetPathState(context.Context, string) (domain.LivePath, bool, error)
	Healthcheck(context.Context) bool
	GetPathConfig(context.Context, string) (domain.PathRecord, error)
	Update(context.Context, domain.PathConf) (domain.PathRecord, error)
	ListPublishers(context.Context) ([]domain.LivePath, error)
}

// ConfigEngine keeps the global configuration in sync.
type ConfigEngine interface {
	Get(context.Context) (globalconfig.State, error)
	Update(context.Context, domain.GlobalConfig) error
	Sync(context.Context, globalconfig.Source) error
}

// SessionLister lists protocol sessions.
type SessionLister interface {
	ListSessions(context.Context, domain.Protocol) ([]domain.Session, error)
}

// MetricsScraper scrapes the media server metrics.
type MetricsScraper interface {
	Fetch(context.Context) (mtxmetrics.MediaServerMetrics, error)
}

// Refresher refreshes the combined path list in the background.
type Refresher interface {
	Refresh()
	Snapshot(context.Context) (refresher.Snapshot, bool)
}

// Server implements the RPC procedures.
type Server struct {
	paths     PathEngine
	config    ConfigEngine
	sessions  SessionLister
	metrics   MetricsScraper
	refresher Refresher
	logger    *slog.Logger
}

// handle builds a connect handler for a unary procedure which exchanges plain
// Go structs. Engine errors are mapped to connect codes.
func handle[Req, Res any](procedure string, fn func(context.Context, *Req) (*Res, error), opts ...connect.HandlerOption) (string, http.Handler) {
	return procedure, connect.NewUnaryHandler(
		procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			res, err := fn(ctx, req.Msg)
			if err != nil {
				return nil, toConnectError(err)
			}
			return connect.NewResponse(res), nil
		},
		opts...,
	)
}

// register registers every procedure on the mux.
func (s *Server) register(mux *http.ServeMux, opts ...connect.HandlerOption) {
	opts = append([]connect.HandlerOption{connect.WithCodec(api.JSONCodec{})}, opts...)

	mux.Handle(handle(api.PathServiceListCombinedProcedure, s.listCombined, opts...))
	mux.Handle(handle(api.PathServiceCreateProcedure, s.createPath, opts...))
	mux.Handle(handle(api.PathServiceSyncProcedure, s.syncPath, opts...))
	mux.Handle(handle(api.PathServiceRemoveProcedure, s.removePath, opts...))
	mux.Handle(handle(api.PathServiceToggleProcedure, s.togglePath, opts...))
	mux.Handle(handle(api.PathServiceGetPathStateProcedure, s.getPathState, opts...))
	mux.Handle(handle(api.PathServiceHealthcheckProcedure, s.healthcheck, opts...))
	mux.Handle(handle(api.PathServiceGetPathConfigProcedure, s.getPathConfig, opts...))
	mux.Handle(handle(api.PathServiceUpdateProcedure, s.updatePath, opts...))
	mux.Handle(handle(api.PathServiceListPublishersProcedure, s.listPublishers, opts...))

	mux.Handle(handle(api.ConfigServiceGetProcedure, s.getConfig, opts...))
	mux.Handle(handle(api.ConfigServiceUpdateProcedure, s.updateConfig, opts...))
	mux.Handle(handle(api.ConfigServiceSyncProcedure, s.syncConfig, opts...))

	mux.Handle(handle(api.SessionServiceListProcedure, s.listSessions, opts...))

	mux.Handle(handle(api.MetricsServiceGetProcedure, s.getMetrics, opts...))
}

func (s *Server) listCombined(ctx context.Context, _ *api.ListCombinedRequest) (*api.ListCombinedResponse, error) {
	paths, err := s.paths.ListCombined(ctx)
	if err != nil {
		return nil, err
	}

	return &api.ListCombinedResponse{Paths: paths}, nil
}

func (s *Server) createPath(ctx context.Context, req *api.CreatePathRequest) (*api.CreatePathResponse, error) {
	defer s.refresher.Refresh()

	rec, err := s.paths.Create(ctx, req.Conf)
	if err != nil {
		return nil, err
	}

	return &api.CreatePathResponse{Path: rec}, nil
}

func (s *Server) syncPath(ctx context.Context, req *api.SyncPathRequest) (*api.SyncPathResponse, error) {
	defer s.refresher.Refresh()

	rec, err := s.paths.Sync(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	return &api.SyncPathResponse{Path: rec}, nil
}

func (s *Server) removePath(ctx context.Context, req *api.RemovePathRequest) (*api.RemovePathResponse, error) {
	defer s.refresher.Refresh()

	if err := s.paths.Remove(ctx, req.Name); err != nil {
		return nil, err
	}

	return &api.RemovePathResponse{}, nil
}

func (s *Server) togglePath(ctx context.Context, req *api.TogglePathRequest) (*api.TogglePathResponse, error) {
	defer s.refresher.Refresh()

	if err := s.paths.Toggle(ctx, req.Name, req.Enabled); err != nil {
		return nil, err
	}

	return &api.TogglePathResponse{}, nil
}

func (s *Server) getPathState(ctx context.Context, req *api.GetPathStateRequest) (*api.GetPathStateResponse, error) {
	path, found, err := s.paths.GetPathState(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	if !found {
		return &api.GetPathStateResponse{}, nil
	}

	return &api.GetPathStateResponse{Found: true, Path: &path}, nil
}

func (s *Server) healthcheck(ctx context.Context, _ *api.HealthcheckRequest) (*api.HealthcheckResponse, error) {
	return &api.HealthcheckResponse{Healthy: s.paths.Healthcheck(ctx)}, nil
}

func (s *Server) getPathConfig(ctx context.Context, req *api.GetPathConfigRequest) (*api.GetPathConfigResponse, error) {
	rec, err := s.paths.GetPathConfig(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	return &api.GetPathConfigResponse{Path: rec}, nil
}

func (s *Server) updatePath(ctx context.Context, req *api.UpdatePathRequest) (*api.UpdatePathResponse, error) {
	defer s.refresher.Refresh()

	rec, err := s.paths.Update(ctx, req.Conf)
	if err != nil {
		return nil, err
	}

	return &api.UpdatePathResponse{Path: rec}, nil
}

func (s *Server) listPublishers(ctx context.Context, _ *api.ListPublishersRequest) (*api.ListPublishersResponse, error) {
	publishers, err := s.paths.ListPublishers(ctx)
	if err != nil {
		return nil, err
	}

	return &api.ListPublishersResponse{Publishers: publishers}, nil
}

func (s *Server) getConfig(ctx context.Context, _ *api.GetConfigRequest) (*api.GetConfigResponse, error) {
	state, err := s.config.Get(ctx)
	if err != nil {
		return nil, err
	}

	return &api.GetConfigResponse{
		LiveConfig: state.LiveConfig,
		DBConfig:   state.DBConfig,
		Drift:      state.Drift,
	}, nil
}

func (s *Server) updateConfig(ctx context.Context, req *api.UpdateConfigRequest) (*api.UpdateConfigResponse, error) {
	if err := s.config.Update(ctx, req.Config); err != nil {
		return nil, err
	}

	return &api.UpdateConfigResponse{}, nil
}

func (s *Server) syncConfig(ctx context.Context, req *api.SyncConfigRequest) (*api.SyncConfigResponse, error) {
	if err := s.config.Sync(ctx, globalconfig.Source(req.Source)); err != nil {
		return nil, err
	}

	return &api.SyncConfigResponse{}, nil
}

func (s *Server) listSessions(ctx context.Context, req *api.ListSessionsRequest) (*api.ListSessionsResponse, error) {
	if !slices.Contains(domain.Protocols, req.Protocol) {
		errs := make(domain.ValidationErrors)
		errs.Append("protocol", "Protocol must be one of rtsp, rtsps, rtmp, rtmps, webrtc, hls or srt")
		return nil, errs
	}

	sessions, err := s.sessions.ListSessions(ctx, req.Protocol)
	if err != nil {
		return nil, err
	}

	return &api.ListSessionsResponse{Sessions: sessions}, nil
}

func (s *Server) getMetrics(ctx context.Context, _ *api.GetMetricsRequest) (*api.GetMetricsResponse, error) {
	metrics, err := s.metrics.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	return &api.GetMetricsResponse{Metrics: metrics}, nil
}
