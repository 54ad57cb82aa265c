// Package mtxmetrics scrapes the Prometheus metrics exposed by MediaMTX.
package mtxmetrics

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
)

// PathMetrics holds the counters of a single path.
type PathMetrics struct {
	Name          string  `json:"name"`
	State         string  `json:"state"`
	BytesReceived float64 `json:"bytesReceived"`
	BytesSent     float64 `json:"bytesSent"`
	Readers       float64 `json:"readers"`
}

// HLSMuxerMetrics holds the counters of a single HLS muxer.
type HLSMuxerMetrics struct {
	Name      string  `json:"name"`
	BytesSent float64 `json:"bytesSent"`
}

// ConnMetrics holds the counters of a single connection or session.
type ConnMetrics struct {
	ID            string  `json:"id"`
	State         string  `json:"state,omitempty"`
	BytesReceived float64 `json:"bytesReceived"`
	BytesSent     float64 `json:"bytesSent"`
}

// RTSPSessionMetrics holds the counters of a single RTSP session.
type RTSPSessionMetrics struct {
	ConnMetrics

	RTPPacketsReceived  float64 `json:"rtpPacketsReceived"`
	RTPPacketsSent      float64 `json:"rtpPacketsSent"`
	RTPPacketsLost      float64 `json:"rtpPacketsLost"`
	RTPPacketsInError   float64 `json:"rtpPacketsInError"`
	RTPPacketsJitter    float64 `json:"rtpPacketsJitter"`
	RTCPPacketsReceived float64 `json:"rtcpPacketsReceived"`
	RTCPPacketsSent     float64 `json:"rtcpPacketsSent"`
	RTCPPacketsInError  float64 `json:"rtcpPacketsInError"`
}

// SRTConnMetrics holds the counters of a single SRT connection. Only the
// most commonly used SRT statistics are modelled.
type SRTConnMetrics struct {
	ConnMetrics

	PacketsSent        float64 `json:"packetsSent"`
	PacketsReceived    float64 `json:"packetsReceived"`
	PacketsSendLoss    float64 `json:"packetsSendLoss"`
	PacketsReceiveLoss float64 `json:"packetsReceivedLoss"`
	PacketsRetrans     float64 `json:"packetsRetrans"`
	MsRTT              float64 `json:"msRtt"`
	MbpsSendRate       float64 `json:"mbpsSendRate"`
	MbpsReceiveRate    float64 `json:"mbpsReceiveRate"`
	MbpsLinkCapacity   float64 `json:"mbpsLinkCapacity"`
}

// MediaServerMetrics is a snapshot of the media server metrics, grouped by
// resource.
type MediaServerMetrics struct {
	Paths           []PathMetrics        `json:"paths"`
	HLSMuxers       []HLSMuxerMetrics    `json:"hlsMuxers"`
	RTSPConns       []ConnMetrics        `json:"rtspConnections"`
	RTSPSessions    []RTSPSessionMetrics `json:"rtspSessions"`
	RTMPConns       []ConnMetrics        `json:"rtmpConnections"`
	SRTConns        []SRTConnMetrics     `json:"srtConnections"`
	WebRTCSessions  []ConnMetrics        `json:"webrtcSessions"`
	ScrapedAt       time.Time            `json:"scrapedAt"`
	UnknownFamilies int                  `json:"-"`
}

type httpClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Scraper fetches and parses the MediaMTX metrics endpoint.
type Scraper struct {
	url        string
	httpClient httpClient
	logger     *slog.Logger
}

// NewScraperParams contains the parameters for building a new Scraper.
type NewScraperParams struct {
	URL        string // e.g. http://localhost:9998/metrics
	HTTPClient httpClient
	Logger     *slog.Logger
}

// NewScraper creates a new Scraper.
func NewScraper(params NewScraperParams) *Scraper {
	var client httpClient = params.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Scraper{
		url:        params.URL,
		httpClient: client,
		logger:     params.Logger.With("component", "mtxmetrics"),
	}
}

// Fetch scrapes the metrics endpoint.
func (s *Scraper) Fetch(ctx context.Context) (MediaServerMetrics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return MediaServerMetrics{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return MediaServerMetrics{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return MediaServerMetrics{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	metrics, err := Parse(resp.Body)
	if err != nil {
		return MediaServerMetrics{}, err
	}
	if metrics.UnknownFamilies > 0 {
		s.logger.Debug("Ignored unknown metric families", "count", metrics.UnknownFamilies)
	}

	return metrics, nil
}

// Parse parses a Prometheus text exposition into MediaServerMetrics.
func Parse(r io.Reader) (MediaServerMetrics, error) {
	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return MediaServerMetrics{}, fmt.Errorf("parse metrics: %w", err)
	}

	var (
		out          = MediaServerMetrics{ScrapedAt: time.Now().UTC()}
		paths        = make(map[string]*PathMetrics)
		hlsMuxers    = make(map[string]*HLSMuxerMetrics)
		rtspConns    = make(map[string]*ConnMetrics)
		rtspSessions = make(map[string]*RTSPSessionMetrics)
		rtmpConns    = make(map[string]*ConnMetrics)
		srtConns     = make(map[string]*SRTConnMetrics)
		webrtc       = make(map[string]*ConnMetrics)
	)

	for name, family := range families {
		if !isKnownFamily(name) {
			out.UnknownFamilies++
			continue
		}

		for _, m := range family.GetMetric() {
			labels := labelMap(m)
			value := metricValue(m)

			switch {
			case strings.HasPrefix(name, "paths"):
				p := getOrCreate(paths, labels["name"], func(k string) *PathMetrics {
					return &PathMetrics{Name: k, State: cmp.Or(labels["state"], "unknown")}
				})
				switch name {
				case "paths_bytes_received":
					p.BytesReceived = value
				case "paths_bytes_sent":
					p.BytesSent = value
				case "paths_readers":
					p.Readers = value
				}
			case strings.HasPrefix(name, "hls_muxers"):
				h := getOrCreate(hlsMuxers, labels["name"], func(k string) *HLSMuxerMetrics {
					return &HLSMuxerMetrics{Name: k}
				})
				if name == "hls_muxers_bytes_sent" {
					h.BytesSent = value
				}
			case strings.HasPrefix(name, "rtsp_conns"), strings.HasPrefix(name, "rtsps_conns"):
				c := getOrCreate(rtspConns, labels["id"], newConn(labels))
				setConnBytes(c, name, value)
			case strings.HasPrefix(name, "rtsp_sessions"), strings.HasPrefix(name, "rtsps_sessions"):
				s := getOrCreate(rtspSessions, labels["id"], func(k string) *RTSPSessionMetrics {
					return &RTSPSessionMetrics{ConnMetrics: *newConn(labels)(k)}
				})
				setRTSPSession(s, name, value)
			case strings.HasPrefix(name, "rtmp_conns"), strings.HasPrefix(name, "rtmps_conns"):
				c := getOrCreate(rtmpConns, labels["id"], newConn(labels))
				setConnBytes(c, name, value)
			case strings.HasPrefix(name, "srt_conns"):
				c := getOrCreate(srtConns, labels["id"], func(k string) *SRTConnMetrics {
					return &SRTConnMetrics{ConnMetrics: *newConn(labels)(k)}
				})
				setSRTConn(c, name, value)
			case strings.HasPrefix(name, "webrtc_sessions"):
				c := getOrCreate(webrtc, labels["id"], newConn(labels))
				setConnBytes(c, name, value)
			}
		}
	}

	out.Paths = sortedValues(paths)
	out.HLSMuxers = sortedValues(hlsMuxers)
	out.RTSPConns = sortedValues(rtspConns)
	out.RTSPSessions = sortedValues(rtspSessions)
	out.RTMPConns = sortedValues(rtmpConns)
	out.SRTConns = sortedValues(srtConns)
	out.WebRTCSessions = sortedValues(webrtc)

	return out, nil
}

var knownPrefixes = []string{
	"paths",
	"hls_muxers",
	"rtsp_conns",
	"rtsps_conns",
	"rtsp_sessions",
	"rtsps_sessions",
	"rtmp_conns",
	"rtmps_conns",
	"srt_conns",
	"webrtc_sessions",
}

func isKnownFamily(name string) bool {
	return slices.ContainsFunc(knownPrefixes, func(prefix string) bool {
		return strings.HasPrefix(name, prefix)
	})
}

func labelMap(m *dto.Metric) map[string]string {
	labels := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	return labels
}

// metricValue returns the value of a gauge, counter or untyped sample.
// MediaMTX does not emit TYPE lines, so most samples are untyped.
func metricValue(m *dto.Metric) float64 {
	switch {
	case m.Gauge != nil:
		return m.GetGauge().GetValue()
	case m.Counter != nil:
		return m.GetCounter().GetValue()
	default:
		return m.GetUntyped().GetValue()
	}
}

func getOrCreate[T any](m map[string]*T, key string, create func(string) *T) *T {
	if v, ok := m[key]; ok {
		return v
	}

	v := create(key)
	m[key] = v
	return v
}

func newConn(labels map[string]string) func(string) *ConnMetrics {
	return func(id string) *ConnMetrics {
		return &ConnMetrics{ID: id, State: labels["state"]}
	}
}

func setConnBytes(c *ConnMetrics, name string, value float64) {
	switch {
	case strings.HasSuffix(name, "_bytes_received"):
		c.BytesReceived = value
	case strings.HasSuffix(name, "_bytes_sent"):
		c.BytesSent = value
	}
}

func setRTSPSession(s *RTSPSessionMetrics, name string, value float64) {
	switch strings.TrimPrefix(strings.TrimPrefix(name, "rtsps_sessions_"), "rtsp_sessions_") {
	case "rtp_packets_received":
		s.RTPPacketsReceived = value
	case "rtp_packets_sent":
		s.RTPPacketsSent = value
	case "rtp_packets_lost":
		s.RTPPacketsLost = value
	case "rtp_packets_in_error":
		s.RTPPacketsInError = value
	case "rtp_packets_jitter":
		s.RTPPacketsJitter = value
	case "rtcp_packets_received":
		s.RTCPPacketsReceived = value
	case "rtcp_packets_sent":
		s.RTCPPacketsSent = value
	case "rtcp_packets_in_error":
		s.RTCPPacketsInError = value
	default:
		setConnBytes(&s.ConnMetrics, name, value)
	}
}

func setSRTConn(c *SRTConnMetrics, name string, value float64) {
	switch strings.TrimPrefix(name, "srt_conns_") {
	case "packets_sent":
		c.PacketsSent = value
	case "packets_received":
		c.PacketsReceived = value
	case "packets_send_loss":
		c.PacketsSendLoss = value
	case "packets_received_loss":
		c.PacketsReceiveLoss = value
	case "packets_retrans":
		c.PacketsRetrans = value
	case "ms_rtt":
		c.MsRTT = value
	case "mbps_send_rate":
		c.MbpsSendRate = value
	case "mbps_receive_rate":
		c.MbpsReceiveRate = value
	case "mbps_link_capacity":
		c.MbpsLinkCapacity = value
	default:
		setConnBytes(&c.ConnMetrics, name, value)
	}
}

func sortedValues[T any](m map[string]*T) []T {
	out := make([]T, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, *m[k])
	}
	return out
}
