package kbucket

import (
	"context"
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/lumeranet/corekad/pkg/clock"
	"github.com/stretchr/testify/require"
)

func randomID(t *testing.T) NodeId {
	t.Helper()
	id := make([]byte, 32)
	_, err := rand.Read(id)
	require.NoError(t, err)
	return NodeId(id)
}

func TestSelfAlwaysPresent(t *testing.T) {
	self := randomID(t)
	kb := New(self, nil, nil)
	list := kb.ToList()
	require.Len(t, list, 1)
	require.True(t, list[0].IsSelf())
}

// S4: self-preservation under bucket pressure.
func TestSelfBucketPreservedUnderSaturation(t *testing.T) {
	self := randomID(t)
	kb := New(self, nil, nil)

	for i := 0; i < 25; i++ {
		peer := randomID(t)
		kb.InsertItem(&PeerItem{ID: peer, Key: KeyOf(HashWallet{}, peer), Object: ServerDescriptor{Address: "10.0.0.1:9"}})
	}

	// self is excluded from Member/Item's bucket scan (its identity is
	// tracked separately) but must always be present in ToList.
	require.False(t, kb.Member(self))
	list := kb.ToList()
	foundSelf := false
	for _, item := range list {
		if item.IsSelf() {
			foundSelf = true
		}
	}
	require.True(t, foundSelf)

	// no bucket may exceed K entries.
	kb.mu.RLock()
	for _, bucket := range kb.buckets {
		require.LessOrEqual(t, len(bucket), K)
	}
	kb.mu.RUnlock()
}

func TestInsertUpdateDeleteItem(t *testing.T) {
	self := randomID(t)
	kb := New(self, nil, nil)
	peer := randomID(t)
	item := &PeerItem{ID: peer, Key: KeyOf(HashWallet{}, peer), Object: ServerDescriptor{Address: "1.2.3.4:9"}}

	require.True(t, kb.InsertItem(item))
	require.True(t, kb.Member(peer))

	item.Object = ServerDescriptor{Address: "5.6.7.8:9"}
	require.True(t, kb.UpdateItem(item))
	got, ok := kb.Item(peer)
	require.True(t, ok)
	require.Equal(t, ServerDescriptor{Address: "5.6.7.8:9"}, got.Object)

	kb.DeleteItem(peer)
	require.False(t, kb.Member(peer))

	// update on an absent item is a no-op, not an insert.
	require.False(t, kb.UpdateItem(item))
	require.False(t, kb.Member(peer))
}

func TestNearestNCountAndOrdering(t *testing.T) {
	self := randomID(t)
	kb := New(self, nil, nil)

	for i := 0; i < 10; i++ {
		peer := randomID(t)
		kb.InsertItem(&PeerItem{ID: peer, Key: KeyOf(HashWallet{}, peer), Object: ServerDescriptor{Address: "x"}})
	}

	key := randomID(t)
	n := kb.NearestN(key, 5)
	require.Len(t, n, 5)

	target := targetKey(key)
	for i := 1; i < len(n); i++ {
		require.True(t, Distance(target, n[i-1].Key).Cmp(Distance(target, n[i].Key)) <= 0)
	}

	all := kb.NearestN(key, 1000)
	require.Equal(t, 10, len(all)) // min(n, live_peer_count), self excluded from peer scan
}

func TestDisabledPeerExcludedFromNearestN(t *testing.T) {
	fc := clock.NewFixed(1000)
	self := randomID(t)
	kb := New(self, nil, fc)

	peer := randomID(t)
	kb.InsertItem(&PeerItem{ID: peer, Key: KeyOf(HashWallet{}, peer), Object: ServerDescriptor{Address: "x"}, LastSeen: 5000})

	require.Empty(t, kb.NearestN(peer, 10))

	fc.Set(6000)
	require.Len(t, kb.NearestN(peer, 10), 1)
}

func TestMarkFailedDisablesAndCountsRetries(t *testing.T) {
	fc := clock.NewFixed(0)
	self := randomID(t)
	kb := New(self, nil, fc)
	peer := randomID(t)
	kb.InsertItem(&PeerItem{ID: peer, Key: KeyOf(HashWallet{}, peer), Object: ServerDescriptor{Address: "x"}})

	kb.MarkFailed(context.Background(), peer, 100)
	kb.MarkFailed(context.Background(), peer, 100)

	retries, ok := kb.Retries(peer)
	require.True(t, ok)
	require.Equal(t, uint32(2), retries)
	require.Empty(t, kb.NearestN(peer, 10)) // disabled until now passes LastSeen
}

// S5: ring wrap distance.
func TestRingWrapDistance(t *testing.T) {
	var a, b ItemKey
	a[31] = 1 // a = 1
	for i := range b {
		b[i] = 0xff // b = 2^256 - 1
	}
	got := Distance(a, b)
	require.Equal(t, 0, got.Cmp(big.NewInt(2)))
}

func TestBucketCapacityNeverExceedsK(t *testing.T) {
	self := randomID(t)
	kb := New(self, nil, nil)
	for i := 0; i < 500; i++ {
		peer := randomID(t)
		kb.InsertItem(&PeerItem{ID: peer, Key: KeyOf(HashWallet{}, peer), Object: ServerDescriptor{Address: "x"}})
	}
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	for _, bucket := range kb.buckets {
		require.LessOrEqual(t, len(bucket), K)
	}
}

func TestToRingListRotation(t *testing.T) {
	self := randomID(t)
	kb := New(self, nil, nil)
	peers := make([]NodeId, 0, 8)
	for i := 0; i < 8; i++ {
		peer := randomID(t)
		peers = append(peers, peer)
		kb.InsertItem(&PeerItem{ID: peer, Key: KeyOf(HashWallet{}, peer), Object: ServerDescriptor{Address: "x"}})
	}

	pivot := peers[0]
	ring := kb.ToRingList(pivot)
	// pivot itself must never appear.
	pivotKey := KeyOf(HashWallet{}, pivot)
	for _, item := range ring {
		require.False(t, item.Key.Equal(pivotKey))
	}
	// ascending order with at most one wrap-around point.
	drops := 0
	for i := 1; i < len(ring); i++ {
		if !idLess(ring[i-1].Key, ring[i].Key) {
			drops++
		}
	}
	require.LessOrEqual(t, drops, 1)
}
