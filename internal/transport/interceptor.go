package transport

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/lumeranet/corekad/pkg/logtrace"
)

const correlationIDHeader = "x-correlation-id"

// unaryServerInterceptor attaches a correlation ID to every incoming
// RPC's context, generating one if the caller sent none, grounded on
// pkg/net/interceptor.go's UnaryServerInterceptor.
func unaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		correlationID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(correlationIDHeader); len(values) > 0 {
				correlationID = values[0]
			}
		}
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		ctx = logtrace.CtxWithCorrelationID(ctx, correlationID)

		fields := logtrace.Fields{
			logtrace.FieldMethod:        info.FullMethod,
			logtrace.FieldCorrelationID: correlationID,
		}
		logtrace.Debug(ctx, "received transport rpc", fields)

		resp, err := handler(ctx, req)
		if err != nil {
			fields[logtrace.FieldError] = err.Error()
			logtrace.Error(ctx, "transport rpc failed", fields)
		}
		return resp, err
	}
}

// withCorrelationID stamps ctx with an outgoing correlation ID header
// if it does not already carry one, grounded on
// pkg/net/interceptor.go's AddCorrelationID.
func withCorrelationID(ctx context.Context) context.Context {
	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		if values := md.Get(correlationIDHeader); len(values) > 0 {
			return ctx
		}
	}
	return metadata.AppendToOutgoingContext(ctx, correlationIDHeader, uuid.NewString())
}
