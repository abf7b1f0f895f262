package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// rawMessage is the only type ever passed to grpc's codec: a bag of
// bytes that wire.go's encodeRequest / encodeResponse have already
// canon-encoded, so
// the wire format is defined entirely by this package instead of by
// generated protobuf code.
type rawMessage struct {
	data []byte
}

// passthroughCodec lets grpc carry pre-encoded bytes without a .proto
// schema, the same trick network.go's hand-rolled framing exists to
// avoid — here delegated to grpc's own connection/stream machinery
// instead of a bespoke TCP protocol.
type passthroughCodec struct{}

func (passthroughCodec) Name() string { return "corekad-raw" }

func (passthroughCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(*rawMessage)
	if !ok {
		return nil, fmt.Errorf("transport: passthroughCodec cannot marshal %T", v)
	}
	return m.data, nil
}

func (passthroughCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(*rawMessage)
	if !ok {
		return fmt.Errorf("transport: passthroughCodec cannot unmarshal into %T", v)
	}
	m.data = append([]byte(nil), data...)
	return nil
}

const serviceName = "corekad.transport.v1.Lookup"
const methodName = "Call"
const fullMethod = "/" + serviceName + "/" + methodName

// serviceDesc registers one unary RPC, "Call", whose request and
// response are both raw canon-encoded bytes; op-specific dispatch
// happens above the wire layer in server.go.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*lookupServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodName, Handler: callHandler},
	},
	Metadata: "corekad/transport",
}

type lookupServer interface {
	call(ctx context.Context, req *rawMessage) (*rawMessage, error)
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(rawMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(lookupServer).call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(lookupServer).call(ctx, req.(*rawMessage))
	}
	return interceptor(ctx, in, info, handler)
}
