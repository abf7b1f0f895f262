package transport

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/lumeranet/corekad/internal/kbucket"
	"github.com/lumeranet/corekad/internal/merkle"
	corekaderrors "github.com/lumeranet/corekad/pkg/errors"
)

// ClientOptions tunes dialing and outbound call pacing, the same
// concerns pkg/net/grpc/client.ClientOptions covers, trimmed to what
// this internal protocol needs (no message-size/window tuning knobs
// since payloads here are small routing/value envelopes, not the
// batched RaptorQ symbol transfers that file was sized for).
type ClientOptions struct {
	Creds             credentials.TransportCredentials
	DialTimeout       time.Duration
	MaxDialAttempts   uint64
	CallsPerSecond    int
	MaxConcurrentCall int64
}

// DefaultClientOptions mirrors the teacher's DefaultClientOptions
// shape with values appropriate to a small control-plane RPC.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Creds:             insecure.NewCredentials(),
		DialTimeout:       10 * time.Second,
		MaxDialAttempts:   3,
		CallsPerSecond:    50,
		MaxConcurrentCall: 16,
	}
}

// Client implements search.Transport over one or more dialed peer
// connections, pooled by address the way conn_pool.go pools raw
// net.Conns, but backed by grpc's own connection management instead
// of a hand-rolled pool of *net.Conn plus a pruning goroutine.
type Client struct {
	opts ClientOptions

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn

	limiter ratelimit.Limiter
	sem     *semaphore.Weighted
}

// NewClient returns a Client ready to dial peers on demand.
func NewClient(opts ClientOptions) *Client {
	if opts.CallsPerSecond <= 0 {
		opts = DefaultClientOptions()
	}
	return &Client{
		opts:    opts,
		conns:   map[string]*grpc.ClientConn{},
		limiter: ratelimit.New(opts.CallsPerSecond),
		sem:     semaphore.NewWeighted(opts.MaxConcurrentCall),
	}
}

// Close tears down every pooled connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for addr, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.conns, addr)
	}
	return firstErr
}

func (c *Client) dial(ctx context.Context, addr string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	if conn, ok := c.conns[addr]; ok {
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.opts.MaxDialAttempts)
	b = backoff.WithContext(b, dialCtx)

	var conn *grpc.ClientConn
	err := backoff.Retry(func() error {
		dialOpts := []grpc.DialOption{
			grpc.WithTransportCredentials(c.opts.Creds),
			grpc.WithDefaultCallOptions(grpc.ForceCodec(passthroughCodec{})),
		}
		newConn, dialErr := grpc.NewClient(addr, dialOpts...)
		if dialErr != nil {
			return dialErr
		}
		conn = newConn
		return nil
	}, b)
	if err != nil {
		return nil, corekaderrors.Wrap(err, "transport: dial")
	}

	c.mu.Lock()
	c.conns[addr] = conn
	c.mu.Unlock()
	return conn, nil
}

func (c *Client) call(ctx context.Context, addr string, req request) (responseEnvelope, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return responseEnvelope{}, err
	}
	defer c.sem.Release(1)
	c.limiter.Take()

	conn, err := c.dial(ctx, addr)
	if err != nil {
		return responseEnvelope{}, err
	}
	ctx = withCorrelationID(ctx)

	data, err := encodeRequest(req)
	if err != nil {
		return responseEnvelope{}, err
	}
	in := &rawMessage{data: data}
	out := new(rawMessage)
	if err := conn.Invoke(ctx, fullMethod, in, out); err != nil {
		return responseEnvelope{}, corekaderrors.Wrap(err, "transport: rpc call")
	}

	resp, err := decodeResponse(out.data)
	if err != nil {
		return responseEnvelope{}, err
	}
	if resp.Err != "" {
		return responseEnvelope{}, corekaderrors.Errorf("transport: remote error: %s", resp.Err)
	}
	return resp, nil
}

// FindNode implements search.Transport.
func (c *Client) FindNode(ctx context.Context, peer *kbucket.PeerItem, target []byte) ([]*kbucket.PeerItem, error) {
	addr, err := peerAddress(peer)
	if err != nil {
		return nil, err
	}
	resp, err := c.call(ctx, addr, request{Op: opFindNode, Target: target})
	if err != nil {
		return nil, err
	}
	return wirePeersToDomain(resp.Peers), nil
}

// FindValue implements search.Transport.
func (c *Client) FindValue(ctx context.Context, peer *kbucket.PeerItem, target []byte) (merkle.Value, bool, []*kbucket.PeerItem, error) {
	addr, err := peerAddress(peer)
	if err != nil {
		return nil, false, nil, err
	}
	resp, err := c.call(ctx, addr, request{Op: opFindValue, Target: target})
	if err != nil {
		return nil, false, nil, err
	}
	return merkle.Value(resp.Value), resp.Found, wirePeersToDomain(resp.Peers), nil
}

func peerAddress(peer *kbucket.PeerItem) (string, error) {
	desc, ok := peer.Object.(kbucket.ServerDescriptor)
	if !ok {
		return "", corekaderrors.Errorf("transport: peer %s has no dial address", peer.ID)
	}
	return desc.Address, nil
}
