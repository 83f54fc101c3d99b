package grpcx

import (
	"context"

	"github.com/md-rashed-zaman/fieldreserve/libs/httpx"
)

// RequestIDMetadataKey is the lowercase metadata key used for request id propagation.
const RequestIDMetadataKey = "x-request-id"

// Request ids share the HTTP context key so HTTP -> gRPC fan-out keeps the same id.
func RequestIDFromContext(ctx context.Context) string {
	return httpx.RequestIDFromContext(ctx)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return httpx.ContextWithRequestID(ctx, id)
}
