package transport

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/lumeranet/corekad/internal/kbucket"
	"github.com/lumeranet/corekad/internal/merkle"
	corekaderrors "github.com/lumeranet/corekad/pkg/errors"
	"github.com/lumeranet/corekad/pkg/logtrace"
)

// Handler answers the two RPCs a peer can make against this node,
// backed by its own routing table and store — the same split
// network.go's handleFindNode/handleFindValue draw between wire
// decoding and DHT-side lookup logic, just without that file's
// message-type switch and hand-rolled response encoding.
type Handler interface {
	FindNode(ctx context.Context, target []byte) ([]*kbucket.PeerItem, error)
	FindValue(ctx context.Context, target []byte) (merkle.Value, bool, []*kbucket.PeerItem, error)
}

// Server exposes a Handler over grpc using the passthrough codec, so
// no protobuf schema or generated stubs are needed for this internal
// peer-to-peer protocol.
type Server struct {
	grpcServer *grpc.Server
	handler    Handler
}

// NewServer wires handler behind a grpc.Server. creds is caller
// supplied — this package never decides the TLS/identity story
// (spec's non-goal on certificate handling).
func NewServer(handler Handler, creds credentials.TransportCredentials) *Server {
	opts := []grpc.ServerOption{
		grpc.ForceServerCodec(passthroughCodec{}),
		grpc.UnaryInterceptor(unaryServerInterceptor()),
	}
	if creds != nil {
		opts = append(opts, grpc.Creds(creds))
	}
	s := &Server{handler: handler, grpcServer: grpc.NewServer(opts...)}
	s.grpcServer.RegisterService(&serviceDesc, s)
	return s
}

// Serve blocks accepting connections on lis until the server is
// stopped or lis closes.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// GracefulStop drains in-flight RPCs before returning.
func (s *Server) GracefulStop() { s.grpcServer.GracefulStop() }

// Stop terminates immediately, dropping in-flight RPCs.
func (s *Server) Stop() { s.grpcServer.Stop() }

func (s *Server) call(ctx context.Context, in *rawMessage) (*rawMessage, error) {
	req, err := decodeRequest(in.data)
	if err != nil {
		return nil, corekaderrors.Wrap(err, "transport: decode request")
	}

	var resp responseEnvelope
	switch req.Op {
	case opFindNode:
		peers, err := s.handler.FindNode(ctx, req.Target)
		if err != nil {
			resp.Err = err.Error()
		} else {
			resp.Peers = domainPeersToWire(peers)
		}
	case opFindValue:
		value, found, peers, err := s.handler.FindValue(ctx, req.Target)
		if err != nil {
			resp.Err = err.Error()
		} else {
			resp.Value, resp.Found, resp.Peers = value, found, domainPeersToWire(peers)
		}
	default:
		logtrace.Warn(ctx, "unknown transport op", logtrace.Fields{
			logtrace.FieldModule: logtrace.ValueModuleTransport,
			"op":                 req.Op,
		})
		resp.Err = "transport: unknown op"
	}

	data, err := encodeResponse(resp)
	if err != nil {
		return nil, corekaderrors.Wrap(err, "transport: encode response")
	}
	return &rawMessage{data: data}, nil
}
