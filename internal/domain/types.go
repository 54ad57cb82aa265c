package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AppName is the name of the app.
const AppName = "mtxdash"

// BuildInfo holds information about the build.
type BuildInfo struct {
	GoVersion string
	Version   string
	Commit    string
	Date      string
}

// CatchAllPathName is the name MediaMTX reports for its catch-all path
// configuration. It is excluded from every list.
const CatchAllPathName = "all_others"

// SourcePublisher is the source value MediaMTX uses for paths which are fed by
// an external publisher.
const SourcePublisher = "publisher"

// PathKind classifies a path by the direction of its media flow.
type PathKind string

const (
	// PathKindProxy is a path which MediaMTX pulls from a source URL.
	PathKindProxy PathKind = "proxy"
	// PathKindSession is a path which an external publisher pushes into.
	PathKindSession PathKind = "session"
)

// ClassifySource returns the PathKind for a configured path source.
func ClassifySource(source *string) PathKind {
	if source == nil || *source == "" || *source == SourcePublisher {
		return PathKindSession
	}

	return PathKindProxy
}

// PathOrigin identifies which view a combined path row was built from.
type PathOrigin string

const (
	PathOriginLive   PathOrigin = "live"
	PathOriginDB     PathOrigin = "db"
	PathOriginConfig PathOrigin = "config"
)

// PathRecord is a path configuration persisted in the local store.
type PathRecord struct {
	ID        uuid.UUID `json:"id"`
	Conf      PathConf  `json:"conf"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Name returns the name of the path.
func (r PathRecord) Name() string {
	return r.Conf.Name
}

// SourceRef is the source or a reader of a live path.
type SourceRef struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// IsPush returns true if the source is an inbound publisher connection.
func (s *SourceRef) IsPush() bool {
	if s == nil {
		return false
	}

	return strings.HasSuffix(s.Type, "Session") || strings.HasSuffix(s.Type, "Conn")
}

// LivePath is a path currently instantiated in the media server.
type LivePath struct {
	Name          string      `json:"name"`
	ConfName      string      `json:"confName"`
	Source        *SourceRef  `json:"source"`
	Ready         bool        `json:"ready"`
	ReadyTime     *time.Time  `json:"readyTime"`
	Tracks        []string    `json:"tracks"`
	BytesReceived uint64      `json:"bytesReceived"`
	BytesSent     uint64      `json:"bytesSent"`
	Readers       []SourceRef `json:"readers"`
}

// publisherSourceTypes are the live source types of paths fed by a publisher.
var publisherSourceTypes = []string{
	"rtmpConn",
	"rtspSession",
	"rtspsSession",
	"srtConn",
	"webRTCSession",
}

// IsPublisher returns true if the path is currently fed by a publisher.
func (p LivePath) IsPublisher() bool {
	return p.Source != nil && slices.Contains(publisherSourceTypes, p.Source.Type)
}

// CombinedSource is the resolved source of a combined path.
type CombinedSource struct {
	Type *string `json:"type"`
}

// CombinedPath is a single reconciled row built from the stored, live and
// configured views of a path.
type CombinedPath struct {
	Name          string         `json:"name"`
	Source        CombinedSource `json:"source"`
	Kind          PathKind       `json:"kind"`
	Origin        PathOrigin     `json:"origin"`
	IsActive      bool           `json:"isActive"`
	IsInDB        bool           `json:"isInDb"`
	Record        bool           `json:"record"`
	Ready         bool           `json:"ready"`
	Readers       int            `json:"readers"`
	BytesReceived uint64         `json:"bytesReceived"`
}

// GlobalConfig is the server-wide MediaMTX configuration. It is treated as an
// opaque document.
type GlobalConfig map[string]any

// Clone returns a shallow copy of the config.
func (c GlobalConfig) Clone() GlobalConfig {
	if c == nil {
		return nil
	}

	out := make(GlobalConfig, len(c))
	for k, v := range c {
		out[k] = v
	}

	return out
}

// Protocol is a streaming protocol exposing sessions or connections.
type Protocol string

const (
	ProtocolRTSP   Protocol = "rtsp"
	ProtocolRTSPS  Protocol = "rtsps"
	ProtocolRTMP   Protocol = "rtmp"
	ProtocolRTMPS  Protocol = "rtmps"
	ProtocolWebRTC Protocol = "webrtc"
	ProtocolHLS    Protocol = "hls"
	ProtocolSRT    Protocol = "srt"
)

// Protocols lists every supported protocol.
var Protocols = []Protocol{
	ProtocolRTSP,
	ProtocolRTSPS,
	ProtocolRTMP,
	ProtocolRTMPS,
	ProtocolWebRTC,
	ProtocolHLS,
	ProtocolSRT,
}

// Session is a protocol session, connection or muxer.
type Session struct {
	ID            string    `json:"id"`
	Protocol      Protocol  `json:"protocol"`
	Created       time.Time `json:"created"`
	RemoteAddr    string    `json:"remoteAddr,omitempty"`
	State         string    `json:"state,omitempty"`
	Path          string    `json:"path"`
	BytesReceived uint64    `json:"bytesReceived"`
	BytesSent     uint64    `json:"bytesSent"`
}
