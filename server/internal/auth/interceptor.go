package auth

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// APIKeyInterceptor returns a gRPC UnaryServerInterceptor that checks the
// API key a creator's shipper attaches to every Publish call.
//
// If mode != "apikey" or key == "" every call is allowed. Otherwise the first
// value of header in the incoming metadata must equal key; anything else is
// rejected with codes.Unauthenticated. header must be lowercase.
func APIKeyInterceptor(mode, header, key string) grpc.UnaryServerInterceptor {
	want := []byte(key)
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if mode != "apikey" || key == "" {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			slog.Warn("auth: call without metadata", "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		vals := md.Get(header)
		if len(vals) == 0 || subtle.ConstantTimeCompare([]byte(vals[0]), want) != 1 {
			slog.Warn("auth: rejected api key", "method", info.FullMethod, "present", len(vals) > 0)
			return nil, status.Error(codes.Unauthenticated, "invalid api key")
		}

		return handler(ctx, req)
	}
}
