package server

import (
	"context"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"git.netflux.io/rob/mtxdash/internal/shortid"
	"github.com/prometheus/client_golang/prometheus"
)

// rpcMetrics records the outcome of RPC calls.
type rpcMetrics struct {
	duration *prometheus.HistogramVec
}

func newRPCMetrics(reg prometheus.Registerer) *rpcMetrics {
	m := &rpcMetrics{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mtxdash",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Duration of RPC calls handled by the server.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"procedure", "code"},
		),
	}
	reg.MustRegister(m.duration)

	return m
}

// observabilityInterceptor logs and times every RPC call.
type observabilityInterceptor struct {
	metrics *rpcMetrics
	logger  *slog.Logger
}

func newObservabilityInterceptor(metrics *rpcMetrics, logger *slog.Logger) observabilityInterceptor {
	return observabilityInterceptor{metrics: metrics, logger: logger}
}

func (i observabilityInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		procedure := req.Spec().Procedure
		logger := i.logger.With("procedure", procedure, "request_id", shortid.New().String())
		logger.Debug("RPC call started", "remote_addr", req.Peer().Addr)

		startedAt := time.Now()
		resp, err := next(ctx, req)
		elapsed := time.Since(startedAt)

		if err == nil {
			i.metrics.duration.WithLabelValues(procedure, "ok").Observe(elapsed.Seconds())
			logger.Debug("RPC call completed", "duration", elapsed)
			return resp, nil
		}

		code := connect.CodeOf(err)
		i.metrics.duration.WithLabelValues(procedure, code.String()).Observe(elapsed.Seconds())

		switch code {
		case connect.CodeInternal, connect.CodeUnavailable, connect.CodeUnknown:
			logger.Error("RPC call failed", "code", code, "err", err, "duration", elapsed)
		default:
			logger.Info("RPC call rejected", "code", code, "err", err, "duration", elapsed)
		}

		return resp, err
	}
}

func (i observabilityInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i observabilityInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
