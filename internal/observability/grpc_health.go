// Package observability serves the metrics, liveness and readiness endpoints
// and instruments the gRPC health server.
package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ktv-subtitle-service/internal/observability/metrics"
)

// HealthServerOptions instruments the gRPC health server. Check calls and
// Watch streams are counted under their full method name in the connection
// metrics; only failed checks are logged.
func HealthServerOptions(m *metrics.Metrics) []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.UnaryInterceptor(checkInterceptor(m)),
		grpc.StreamInterceptor(watchInterceptor(m)),
	}
}

func checkInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.RecordCall(info.FullMethod, err == nil, time.Since(start).Seconds())
		if err != nil {
			logHealthFailure(info.FullMethod, err)
		}
		return resp, err
	}
}

func watchInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		m.RecordStreamStart(info.FullMethod)

		err := handler(srv, ss)

		// A watcher hanging up is how Watch streams normally end.
		ok := err == nil || status.Code(err) == codes.Canceled
		m.RecordStreamEnd(info.FullMethod, ok, time.Since(start).Seconds())
		if !ok {
			logHealthFailure(info.FullMethod, err)
		}
		return err
	}
}

func logHealthFailure(method string, err error) {
	log.Warn().
		Str("component", "health").
		Str("method", method).
		Str("code", status.Code(err).String()).
		Err(err).
		Msg("health check failed")
}
