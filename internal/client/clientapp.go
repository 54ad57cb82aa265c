package client

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"connectrpc.com/connect"
	"git.netflux.io/rob/mtxdash/internal/api"
	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/httphelpers"
)

// DefaultServerURL is the default URL for the client to connect to.
const DefaultServerURL = "http://localhost:8080"

// App is the client application.
type App struct {
	serverURL          string
	insecureSkipVerify bool
	httpClient         *http.Client
	out                io.Writer
	logger             *slog.Logger
}

// NewParams contains the parameters for the App.
type NewParams struct {
	ServerURL          string
	InsecureSkipVerify bool
	Out                io.Writer // defaults to stdout
	Logger             *slog.Logger
}

// New creates a new App instance.
func New(params NewParams) *App {
	out := params.Out
	if out == nil {
		out = os.Stdout
	}

	return &App{
		serverURL:          strings.TrimSuffix(cmp.Or(params.ServerURL, DefaultServerURL), "/"),
		insecureSkipVerify: params.InsecureSkipVerify,
		out:                out,
		logger:             params.Logger.With("component", "client"),
	}
}

func (a *App) buildHTTPClient(ctx context.Context) (*http.Client, error) {
	if a.httpClient != nil {
		return a.httpClient, nil
	}

	if a.insecureSkipVerify {
		a.logger.Warn(
			"TLS certificate verification is DISABLED, traffic is encrypted but unauthenticated",
			"risk", "vulnerable to active MITM",
		)
	}

	httpClient, err := httphelpers.NewH2Client(ctx, a.serverURL, a.insecureSkipVerify)
	if err != nil {
		return nil, fmt.Errorf("new H2 client: %w", err)
	}
	a.httpClient = httpClient

	return httpClient, nil
}

// call calls a unary procedure.
func call[Req, Res any](ctx context.Context, a *App, procedure string, req *Req) (*Res, error) {
	httpClient, err := a.buildHTTPClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("build client: %w", err)
	}

	client := connect.NewClient[Req, Res](httpClient, a.serverURL+procedure, connect.WithCodec(api.JSONCodec{}))
	resp, err := client.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fmt.Errorf("call API: %w", err)
	}

	return resp.Msg, nil
}

// ListPaths prints the combined path list.
func (a *App) ListPaths(ctx context.Context) error {
	resp, err := call[api.ListCombinedRequest, api.ListCombinedResponse](ctx, a, api.PathServiceListCombinedProcedure, &api.ListCombinedRequest{})
	if err != nil {
		return err
	}

	return printPaths(a.out, resp.Paths)
}

// CreatePath registers and stores a new path.
func (a *App) CreatePath(ctx context.Context, conf domain.PathConf) error {
	resp, err := call[api.CreatePathRequest, api.CreatePathResponse](ctx, a, api.PathServiceCreateProcedure, &api.CreatePathRequest{Conf: conf})
	if err != nil {
		return err
	}

	return printPathRecord(a.out, resp.Path)
}

// UpdatePath replaces the configuration of a stored path.
func (a *App) UpdatePath(ctx context.Context, conf domain.PathConf) error {
	resp, err := call[api.UpdatePathRequest, api.UpdatePathResponse](ctx, a, api.PathServiceUpdateProcedure, &api.UpdatePathRequest{Conf: conf})
	if err != nil {
		return err
	}

	return printPathRecord(a.out, resp.Path)
}

// RemovePath removes a stored path.
func (a *App) RemovePath(ctx context.Context, name string) error {
	if _, err := call[api.RemovePathRequest, api.RemovePathResponse](ctx, a, api.PathServiceRemoveProcedure, &api.RemovePathRequest{Name: name}); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Path %q removed.\n", name)

	return nil
}

// TogglePath registers a stored path with the media server, or deregisters
// it.
func (a *App) TogglePath(ctx context.Context, name string, enabled bool) error {
	if _, err := call[api.TogglePathRequest, api.TogglePathResponse](ctx, a, api.PathServiceToggleProcedure, &api.TogglePathRequest{Name: name, Enabled: enabled}); err != nil {
		return err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Fprintf(a.out, "Path %q %s.\n", name, state)

	return nil
}

// SyncPath stores a path which is known only to the media server.
func (a *App) SyncPath(ctx context.Context, name string) error {
	resp, err := call[api.SyncPathRequest, api.SyncPathResponse](ctx, a, api.PathServiceSyncProcedure, &api.SyncPathRequest{Name: name})
	if err != nil {
		return err
	}

	return printPathRecord(a.out, resp.Path)
}

// PathState prints the live state of a path.
func (a *App) PathState(ctx context.Context, name string) error {
	resp, err := call[api.GetPathStateRequest, api.GetPathStateResponse](ctx, a, api.PathServiceGetPathStateProcedure, &api.GetPathStateRequest{Name: name})
	if err != nil {
		return err
	}

	if !resp.Found {
		fmt.Fprintf(a.out, "Path %q is not active.\n", name)
		return nil
	}

	return printLivePath(a.out, *resp.Path)
}

// GetPath prints the stored configuration of a path.
func (a *App) GetPath(ctx context.Context, name string) error {
	resp, err := call[api.GetPathConfigRequest, api.GetPathConfigResponse](ctx, a, api.PathServiceGetPathConfigProcedure, &api.GetPathConfigRequest{Name: name})
	if err != nil {
		return err
	}

	return printPathRecord(a.out, resp.Path)
}

// ListPublishers prints the paths currently fed by a publisher.
func (a *App) ListPublishers(ctx context.Context) error {
	resp, err := call[api.ListPublishersRequest, api.ListPublishersResponse](ctx, a, api.PathServiceListPublishersProcedure, &api.ListPublishersRequest{})
	if err != nil {
		return err
	}

	return printPublishers(a.out, resp.Publishers)
}

// Health prints whether the media server is reachable.
func (a *App) Health(ctx context.Context) error {
	resp, err := call[api.HealthcheckRequest, api.HealthcheckResponse](ctx, a, api.PathServiceHealthcheckProcedure, &api.HealthcheckRequest{})
	if err != nil {
		return err
	}

	if resp.Healthy {
		fmt.Fprintln(a.out, "Media server is reachable.")
	} else {
		fmt.Fprintln(a.out, "Media server is NOT reachable.")
	}

	return nil
}

// GetConfig prints the global configuration and its drift.
func (a *App) GetConfig(ctx context.Context) error {
	resp, err := call[api.GetConfigRequest, api.GetConfigResponse](ctx, a, api.ConfigServiceGetProcedure, &api.GetConfigRequest{})
	if err != nil {
		return err
	}

	return printConfig(a.out, *resp)
}

// SetConfig patches the global configuration.
func (a *App) SetConfig(ctx context.Context, partial domain.GlobalConfig) error {
	if _, err := call[api.UpdateConfigRequest, api.UpdateConfigResponse](ctx, a, api.ConfigServiceUpdateProcedure, &api.UpdateConfigRequest{Config: partial}); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Configuration updated.")

	return nil
}

// SyncConfig adopts one side of the global configuration: "mtx" or "db".
func (a *App) SyncConfig(ctx context.Context, source string) error {
	if _, err := call[api.SyncConfigRequest, api.SyncConfigResponse](ctx, a, api.ConfigServiceSyncProcedure, &api.SyncConfigRequest{Source: source}); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Configuration synced from %s.\n", source)

	return nil
}

// ListSessions prints the sessions of a protocol.
func (a *App) ListSessions(ctx context.Context, protocol domain.Protocol) error {
	resp, err := call[api.ListSessionsRequest, api.ListSessionsResponse](ctx, a, api.SessionServiceListProcedure, &api.ListSessionsRequest{Protocol: protocol})
	if err != nil {
		return err
	}

	return printSessions(a.out, resp.Sessions)
}

// Metrics prints the media server metrics.
func (a *App) Metrics(ctx context.Context) error {
	resp, err := call[api.GetMetricsRequest, api.GetMetricsResponse](ctx, a, api.MetricsServiceGetProcedure, &api.GetMetricsRequest{})
	if err != nil {
		return err
	}

	return printMetrics(a.out, resp.Metrics)
}
