package mediaserver

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics records the outcome of requests to the control API.
type RequestMetrics struct {
	duration *prometheus.HistogramVec
}

// NewRequestMetrics creates and registers the request metrics with reg.
func NewRequestMetrics(reg prometheus.Registerer) *RequestMetrics {
	m := &RequestMetrics{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mtxdash",
				Subsystem: "mediamtx",
				Name:      "request_duration_seconds",
				Help:      "Duration of requests to the MediaMTX control API.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "code"},
		),
	}
	reg.MustRegister(m.duration)

	return m
}

// observe records a single request. It is a no-op on a nil receiver.
// A status code of zero means the request failed before a response was
// received.
func (m *RequestMetrics) observe(method, endpoint string, statusCode int, d time.Duration) {
	if m == nil {
		return
	}

	code := "error"
	if statusCode != 0 {
		code = strconv.Itoa(statusCode)
	}

	m.duration.WithLabelValues(method, endpoint, code).Observe(d.Seconds())
}
