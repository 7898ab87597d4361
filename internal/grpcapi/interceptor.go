package grpcapi

import (
	"context"
	"time"

	"replyBandit/business/bandit"
	"replyBandit/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const traceIDKey = "x-trace-id"

// TraceInterceptor copies the caller's x-trace-id (or a new id) into the
// request context and logs the call outcome.
func TraceInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		var id string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(traceIDKey); len(vals) > 0 {
				id = vals[0]
			}
		}
		ctx = bandit.WithTraceID(ctx, id)
		_ = grpc.SetHeader(ctx, metadata.Pairs(traceIDKey, bandit.TraceIDFromContext(ctx)))

		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc_call",
			"trace_id", bandit.TraceIDFromContext(ctx),
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}
