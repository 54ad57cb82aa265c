package mediaserver

import (
	"context"
	"fmt"
	"time"

	"git.netflux.io/rob/mtxdash/internal/domain"
)

// sessionEndpoints maps each protocol to its list endpoint.
var sessionEndpoints = map[domain.Protocol]string{
	domain.ProtocolRTSP:   "rtspsessions/list",
	domain.ProtocolRTSPS:  "rtspssessions/list",
	domain.ProtocolRTMP:   "rtmpconns/list",
	domain.ProtocolRTMPS:  "rtmpsconns/list",
	domain.ProtocolWebRTC: "webrtcsessions/list",
	domain.ProtocolHLS:    "hlsmuxers/list",
	domain.ProtocolSRT:    "srtconns/list",
}

// apiSession holds the fields shared by the MediaMTX session, connection and
// muxer types.
type apiSession struct {
	ID            string    `json:"id"`
	Created       time.Time `json:"created"`
	RemoteAddr    string    `json:"remoteAddr"`
	State         string    `json:"state"`
	Path          string    `json:"path"`
	BytesReceived uint64    `json:"bytesReceived"`
	BytesSent     uint64    `json:"bytesSent"`
}

// ListSessions returns the sessions, connections or muxers of the given
// protocol.
func (c *Client) ListSessions(ctx context.Context, protocol domain.Protocol) ([]domain.Session, error) {
	endpoint, ok := sessionEndpoints[protocol]
	if !ok {
		return nil, fmt.Errorf("unsupported protocol: %q", protocol)
	}

	items, err := listAll[apiSession](ctx, c, endpoint)
	if err != nil {
		return nil, err
	}

	sessions := make([]domain.Session, 0, len(items))
	for _, item := range items {
		id := item.ID
		if id == "" {
			// HLS muxers are identified by their path.
			id = item.Path
		}

		sessions = append(sessions, domain.Session{
			ID:            id,
			Protocol:      protocol,
			Created:       item.Created,
			RemoteAddr:    item.RemoteAddr,
			State:         item.State,
			Path:          item.Path,
			BytesReceived: item.BytesReceived,
			BytesSent:     item.BytesSent,
		})
	}

	return sessions, nil
}
