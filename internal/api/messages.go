package api

import (
	"time"

	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/mtxmetrics"
)

type ListCombinedRequest struct{}

type ListCombinedResponse struct {
	Paths []domain.CombinedPath `json:"paths"`
}

type CreatePathRequest struct {
	Conf domain.PathConf `json:"conf"`
}

type CreatePathResponse struct {
	Path domain.PathRecord `json:"path"`
}

type SyncPathRequest struct {
	Name string `json:"name"`
}

type SyncPathResponse struct {
	Path domain.PathRecord `json:"path"`
}

type RemovePathRequest struct {
	Name string `json:"name"`
}

type RemovePathResponse struct{}

type TogglePathRequest struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type TogglePathResponse struct{}

type GetPathStateRequest struct {
	Name string `json:"name"`
}

// GetPathStateResponse holds the live state of a path. Path is nil if the
// path is not currently instantiated.
type GetPathStateResponse struct {
	Found bool             `json:"found"`
	Path  *domain.LivePath `json:"path,omitempty"`
}

type HealthcheckRequest struct{}

type HealthcheckResponse struct {
	Healthy bool `json:"healthy"`
}

type GetPathConfigRequest struct {
	Name string `json:"name"`
}

type GetPathConfigResponse struct {
	Path domain.PathRecord `json:"path"`
}

type UpdatePathRequest struct {
	Conf domain.PathConf `json:"conf"`
}

type UpdatePathResponse struct {
	Path domain.PathRecord `json:"path"`
}

type ListPublishersRequest struct{}

type ListPublishersResponse struct {
	Publishers []domain.LivePath `json:"publishers"`
}

type GetConfigRequest struct{}

// GetConfigResponse holds the live global configuration, its stored mirror
// and the keys which differ. DBConfig is nil if nothing has been stored.
type GetConfigResponse struct {
	LiveConfig domain.GlobalConfig `json:"liveConfig"`
	DBConfig   domain.GlobalConfig `json:"dbConfig"`
	Drift      []string            `json:"drift"`
}

type UpdateConfigRequest struct {
	Config domain.GlobalConfig `json:"config"`
}

type UpdateConfigResponse struct{}

// SyncConfigRequest selects the side which wins: "mtx" or "db".
type SyncConfigRequest struct {
	Source string `json:"source"`
}

type SyncConfigResponse struct{}

type ListSessionsRequest struct {
	Protocol domain.Protocol `json:"protocol"`
}

type ListSessionsResponse struct {
	Sessions []domain.Session `json:"sessions"`
}

type GetMetricsRequest struct{}

type GetMetricsResponse struct {
	Metrics mtxmetrics.MediaServerMetrics `json:"metrics"`
}

// PathsSnapshot is the message pushed to WebSocket subscribers after every
// refresh. Error is set if the refresh failed, in which case Paths holds the
// last successful result.
type PathsSnapshot struct {
	Paths       []domain.CombinedPath `json:"paths"`
	RefreshedAt time.Time             `json:"refreshedAt"`
	Connected   bool                  `json:"connected"`
	Error       string                `json:"error,omitempty"`
}
