package search

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumeranet/corekad/internal/kbucket"
	"github.com/lumeranet/corekad/internal/merkle"
)

func randomID(t *testing.T) kbucket.NodeId {
	t.Helper()
	id := make([]byte, 32)
	_, err := rand.Read(id)
	require.NoError(t, err)
	return kbucket.NodeId(id)
}

func peerItem(t *testing.T, id kbucket.NodeId) *kbucket.PeerItem {
	t.Helper()
	return &kbucket.PeerItem{
		ID:     id,
		Key:    kbucket.KeyOf(kbucket.HashWallet{}, id),
		Object: kbucket.ServerDescriptor{Address: "x"},
	}
}

// fakeNetwork wires each peer's ID to a fixed set of "closer" peers it
// will return, simulating a small routing graph without any real
// transport.
type fakeNetwork struct {
	mu        sync.Mutex
	adjacency map[string][]*kbucket.PeerItem
	values    map[string]merkle.Value
	calls     map[string]int
	fail      map[string]bool
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		adjacency: map[string][]*kbucket.PeerItem{},
		values:    map[string]merkle.Value{},
		calls:     map[string]int{},
		fail:      map[string]bool{},
	}
}

func (n *fakeNetwork) link(from kbucket.NodeId, to ...*kbucket.PeerItem) {
	n.adjacency[from.String()] = to
}

func (n *fakeNetwork) setValue(from kbucket.NodeId, v merkle.Value) {
	n.values[from.String()] = v
}

func (n *fakeNetwork) FindNode(_ context.Context, peer *kbucket.PeerItem, _ []byte) ([]*kbucket.PeerItem, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[peer.ID.String()]++
	if n.fail[peer.ID.String()] {
		return nil, fmt.Errorf("simulated transport failure")
	}
	return n.adjacency[peer.ID.String()], nil
}

func (n *fakeNetwork) FindValue(ctx context.Context, peer *kbucket.PeerItem, target []byte) (merkle.Value, bool, []*kbucket.PeerItem, error) {
	n.mu.Lock()
	v, ok := n.values[peer.ID.String()]
	n.mu.Unlock()
	if ok {
		return v, true, nil, nil
	}
	closer, err := n.FindNode(ctx, peer, target)
	return nil, false, closer, err
}

func TestFindNodeConvergesOnSeeds(t *testing.T) {
	self := randomID(t)
	kb := kbucket.New(self, nil, nil)
	net := newFakeNetwork()

	a := randomID(t)
	b := randomID(t)
	c := randomID(t)
	for _, id := range []kbucket.NodeId{a, b, c} {
		kb.InsertItem(peerItem(t, id))
	}
	net.link(a, peerItem(t, b), peerItem(t, c))

	d := New(kb, net, DefaultOptions())
	res, err := d.FindNode(context.Background(), []byte("target-key"))
	require.NoError(t, err)
	require.NotEmpty(t, res.Closest)
	require.False(t, res.Found)
}

func TestFindValueStopsOnFirstHit(t *testing.T) {
	self := randomID(t)
	kb := kbucket.New(self, nil, nil)
	net := newFakeNetwork()

	a := randomID(t)
	b := randomID(t)
	kb.InsertItem(peerItem(t, a))
	kb.InsertItem(peerItem(t, b))
	net.setValue(a, merkle.Value("found-it"))

	d := New(kb, net, DefaultOptions())
	res, err := d.FindValue(context.Background(), []byte("target-key"))
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, merkle.Value("found-it"), res.Value)
}

func TestFindNodeReturnsEmptyWithNoSeeds(t *testing.T) {
	self := randomID(t)
	kb := kbucket.New(self, nil, nil)
	net := newFakeNetwork()

	d := New(kb, net, DefaultOptions())
	res, err := d.FindNode(context.Background(), []byte("target-key"))
	require.NoError(t, err)
	require.Empty(t, res.Closest)
}

func TestRepeatedFailuresEvictPeer(t *testing.T) {
	self := randomID(t)
	kb := kbucket.New(self, nil, nil)
	net := newFakeNetwork()

	bad := randomID(t)
	kb.InsertItem(peerItem(t, bad))
	net.fail[bad.String()] = true

	opts := DefaultOptions()
	opts.EvictAfterFailures = 1
	d := New(kb, net, opts)

	_, err := d.FindNode(context.Background(), []byte("target-key"))
	require.NoError(t, err)

	retries, ok := kb.Retries(bad)
	require.True(t, ok)
	require.GreaterOrEqual(t, retries, uint32(1))
}

func TestFindNodeAsyncRespectsCancellation(t *testing.T) {
	self := randomID(t)
	kb := kbucket.New(self, nil, nil)
	net := newFakeNetwork()
	peer := randomID(t)
	kb.InsertItem(peerItem(t, peer))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(kb, net, DefaultOptions())
	select {
	case res, ok := <-d.FindNodeAsync(ctx, []byte("target-key")):
		require.False(t, ok, "channel should close without a send on cancellation, got %+v", res)
	case <-time.After(time.Second):
		t.Fatal("FindNodeAsync did not observe cancellation")
	}
}
