package transport

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/lumeranet/corekad/internal/kbucket"
	"github.com/lumeranet/corekad/internal/merkle"
)

var errFakeHandler = errors.New("simulated handler failure")

type fakeHandler struct {
	peers []*kbucket.PeerItem
	value merkle.Value
	found bool
	err   error
}

func (h *fakeHandler) FindNode(context.Context, []byte) ([]*kbucket.PeerItem, error) {
	return h.peers, h.err
}

func (h *fakeHandler) FindValue(context.Context, []byte) (merkle.Value, bool, []*kbucket.PeerItem, error) {
	return h.value, h.found, h.peers, h.err
}

// dialer builds a grpc.DialOption that connects through an in-memory
// bufconn listener instead of a real socket, the same pattern grpc's
// own test suite uses for hermetic client/server tests.
func dialer(lis *bufconn.Listener) grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func startServer(t *testing.T, handler Handler) (*bufconn.Listener, func()) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := NewServer(handler, nil)
	go func() { _ = srv.Serve(lis) }()
	return lis, srv.Stop
}

func newBufconnClient(t *testing.T, lis *bufconn.Listener) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		dialer(lis),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(passthroughCodec{})),
	)
	require.NoError(t, err)
	return conn
}

func TestServerFindNodeRoundTrip(t *testing.T) {
	self := kbucket.NodeId([]byte("11111111111111111111111111111111"))
	peer := &kbucket.PeerItem{ID: self, Object: kbucket.ServerDescriptor{Address: "peer:1"}}
	handler := &fakeHandler{peers: []*kbucket.PeerItem{peer}}

	lis, stop := startServer(t, handler)
	defer stop()
	conn := newBufconnClient(t, lis)
	defer conn.Close()

	data, err := encodeRequest(request{Op: opFindNode, Target: []byte("target")})
	require.NoError(t, err)
	in := &rawMessage{data: data}
	out := new(rawMessage)
	require.NoError(t, conn.Invoke(context.Background(), fullMethod, in, out))

	resp, err := decodeResponse(out.data)
	require.NoError(t, err)
	require.Empty(t, resp.Err)
	require.Len(t, resp.Peers, 1)
	require.Equal(t, "peer:1", resp.Peers[0].Address)
}

func TestServerFindValueRoundTrip(t *testing.T) {
	handler := &fakeHandler{value: merkle.Value("hello"), found: true}

	lis, stop := startServer(t, handler)
	defer stop()
	conn := newBufconnClient(t, lis)
	defer conn.Close()

	data, err := encodeRequest(request{Op: opFindValue, Target: []byte("target")})
	require.NoError(t, err)
	in := &rawMessage{data: data}
	out := new(rawMessage)
	require.NoError(t, conn.Invoke(context.Background(), fullMethod, in, out))

	resp, err := decodeResponse(out.data)
	require.NoError(t, err)
	require.True(t, resp.Found)
	require.Equal(t, []byte("hello"), resp.Value)
}

func TestServerPropagatesHandlerError(t *testing.T) {
	handler := &fakeHandler{err: errFakeHandler}

	lis, stop := startServer(t, handler)
	defer stop()
	conn := newBufconnClient(t, lis)
	defer conn.Close()

	data, err := encodeRequest(request{Op: opFindNode, Target: []byte("target")})
	require.NoError(t, err)
	in := &rawMessage{data: data}
	out := new(rawMessage)
	require.NoError(t, conn.Invoke(context.Background(), fullMethod, in, out))

	resp, err := decodeResponse(out.data)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Err)
}

func TestLoopbackRoutesToRegisteredHandler(t *testing.T) {
	lb := NewLoopback()
	handler := &fakeHandler{value: merkle.Value("v"), found: true}
	lb.Register("node-a", handler)

	peer := &kbucket.PeerItem{Object: kbucket.ServerDescriptor{Address: "node-a"}}
	value, found, _, err := lb.FindValue(context.Background(), peer, []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, merkle.Value("v"), value)
}

func TestLoopbackUnknownAddressErrors(t *testing.T) {
	lb := NewLoopback()
	peer := &kbucket.PeerItem{Object: kbucket.ServerDescriptor{Address: "missing"}}
	_, err := lb.FindNode(context.Background(), peer, []byte("k"))
	require.Error(t, err)
}
