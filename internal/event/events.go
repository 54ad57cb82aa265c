package event

import (
	"time"

	"git.netflux.io/rob/mtxdash/internal/domain"
)

type Name string

const (
	EventNamePathsRefreshed           Name = "paths_refreshed"
	EventNamePathsRefreshFailed       Name = "paths_refresh_failed"
	EventNameMediaServerStatusChanged Name = "media_server_status_changed"
)

// Event represents something which happened in the application.
type Event interface {
	name() Name
}

// NameOf returns the name of an event.
func NameOf(evt Event) Name {
	return evt.name()
}

// PathsRefreshedEvent is emitted when the combined path list has been
// recomputed.
type PathsRefreshedEvent struct {
	Paths       []domain.CombinedPath
	RefreshedAt time.Time
	Connected   bool
}

func (e PathsRefreshedEvent) name() Name {
	return EventNamePathsRefreshed
}

// PathsRefreshFailedEvent is emitted when the combined path list could not
// be recomputed.
type PathsRefreshFailedEvent struct {
	Err error
}

func (e PathsRefreshFailedEvent) name() Name {
	return EventNamePathsRefreshFailed
}

// MediaServerStatusChangedEvent is emitted when the media server becomes
// reachable or unreachable.
type MediaServerStatusChangedEvent struct {
	Connected bool
}

func (e MediaServerStatusChangedEvent) name() Name {
	return EventNameMediaServerStatusChanged
}
