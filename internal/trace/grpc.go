// Package trace - gRPC interceptor for trace extraction.
package trace

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor continues the caller's trace from incoming metadata
// (or starts one) and logs each call.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx = WithContext(ctx, extractMetadata(ctx))
		start := time.Now()

		resp, err := handler(ctx, req)

		Logger(ctx).Debug("grpc call",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
}

// extractMetadata reads trace context from incoming gRPC metadata.
func extractMetadata(ctx context.Context) Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return New()
	}

	m := make(map[string]string, 2)
	for _, key := range []string{TraceIDKey, SpanIDKey} {
		if v := md.Get(key); len(v) > 0 {
			m[key] = v[0]
		}
	}
	return FromMap(m)
}
