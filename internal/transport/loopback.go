package transport

import (
	"context"

	"github.com/lumeranet/corekad/internal/kbucket"
	"github.com/lumeranet/corekad/internal/merkle"
	corekaderrors "github.com/lumeranet/corekad/pkg/errors"
)

// Loopback implements search.Transport by calling a Handler directly,
// skipping gRPC entirely. It exists for single-process operation and
// tests, the same role a direct DHT reference plays in dht.go's own
// test harness before any network.go dialing is involved.
type Loopback struct {
	handlers map[string]Handler
}

// NewLoopback returns an empty in-memory routing fabric. Register each
// participating node's Handler under its dial address with Register.
func NewLoopback() *Loopback {
	return &Loopback{handlers: map[string]Handler{}}
}

// Register makes handler reachable at addr by FindNode/FindValue.
func (l *Loopback) Register(addr string, handler Handler) {
	l.handlers[addr] = handler
}

func (l *Loopback) resolve(peer *kbucket.PeerItem) (Handler, error) {
	desc, ok := peer.Object.(kbucket.ServerDescriptor)
	if !ok {
		return nil, corekaderrors.Errorf("transport: peer %s has no dial address", peer.ID)
	}
	h, ok := l.handlers[desc.Address]
	if !ok {
		return nil, corekaderrors.Errorf("transport: no loopback handler registered for %s", desc.Address)
	}
	return h, nil
}

// FindNode implements search.Transport.
func (l *Loopback) FindNode(ctx context.Context, peer *kbucket.PeerItem, target []byte) ([]*kbucket.PeerItem, error) {
	h, err := l.resolve(peer)
	if err != nil {
		return nil, err
	}
	return h.FindNode(ctx, target)
}

// FindValue implements search.Transport.
func (l *Loopback) FindValue(ctx context.Context, peer *kbucket.PeerItem, target []byte) (merkle.Value, bool, []*kbucket.PeerItem, error) {
	h, err := l.resolve(peer)
	if err != nil {
		return nil, false, nil, err
	}
	return h.FindValue(ctx, target)
}
