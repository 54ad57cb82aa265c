// Package api defines the RPC procedures and messages shared by the server
// and the CLI client.
package api

// Service names.
const (
	PathServiceName    = "mtxdash.v1.PathService"
	ConfigServiceName  = "mtxdash.v1.ConfigService"
	SessionServiceName = "mtxdash.v1.SessionService"
	MetricsServiceName = "mtxdash.v1.MetricsService"
)

// Procedure paths.
const (
	PathServiceListCombinedProcedure   = "/" + PathServiceName + "/ListCombined"
	PathServiceCreateProcedure         = "/" + PathServiceName + "/Create"
	PathServiceSyncProcedure           = "/" + PathServiceName + "/Sync"
	PathServiceRemoveProcedure         = "/" + PathServiceName + "/Remove"
	PathServiceToggleProcedure         = "/" + PathServiceName + "/Toggle"
	PathServiceGetPathStateProcedure   = "/" + PathServiceName + "/GetPathState"
	PathServiceHealthcheckProcedure    = "/" + PathServiceName + "/Healthcheck"
	PathServiceGetPathConfigProcedure  = "/" + PathServiceName + "/GetPathConfig"
	PathServiceUpdateProcedure         = "/" + PathServiceName + "/Update"
	PathServiceListPublishersProcedure = "/" + PathServiceName + "/ListPublishers"

	ConfigServiceGetProcedure    = "/" + ConfigServiceName + "/Get"
	ConfigServiceUpdateProcedure = "/" + ConfigServiceName + "/Update"
	ConfigServiceSyncProcedure   = "/" + ConfigServiceName + "/Sync"

	SessionServiceListProcedure = "/" + SessionServiceName + "/List"

	MetricsServiceGetProcedure = "/" + MetricsServiceName + "/Get"
)

// WatchPathsPath is the WebSocket endpoint which pushes path snapshots.
const WatchPathsPath = "/ws/paths"
