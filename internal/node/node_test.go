package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumeranet/corekad/internal/merkle"
	"github.com/lumeranet/corekad/pkg/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.CacheEnabled = true
	cfg.BaseDir = t.TempDir()
	return cfg
}

func TestOpenPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	self, err := NewNodeID()
	require.NoError(t, err)

	n, err := Open(ctx, cfg, self, nil)
	require.NoError(t, err)
	defer n.Close()

	_, err = n.Put(ctx, merkle.Key("hello"), merkle.Value("world"))
	require.NoError(t, err)

	value, found, err := n.Get(ctx, merkle.Key("hello"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, merkle.Value("world"), value)
}

func TestFindValueHandlerServesLocalKey(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	self, err := NewNodeID()
	require.NoError(t, err)

	n, err := Open(ctx, cfg, self, nil)
	require.NoError(t, err)
	defer n.Close()

	_, err = n.Put(ctx, merkle.Key("k"), merkle.Value("v"))
	require.NoError(t, err)

	value, found, closer, err := n.FindValue(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Empty(t, closer)
	require.Equal(t, merkle.Value("v"), value)
}

func TestFindValueHandlerFallsBackToClosestPeers(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	self, err := NewNodeID()
	require.NoError(t, err)

	n, err := Open(ctx, cfg, self, nil)
	require.NoError(t, err)
	defer n.Close()

	_, found, closer, err := n.FindValue(ctx, []byte("missing"))
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, closer) // no peers registered in this test's routing table
}

func TestReopenRestoresRoot(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	self, err := NewNodeID()
	require.NoError(t, err)

	n, err := Open(ctx, cfg, self, nil)
	require.NoError(t, err)
	root, err := n.Put(ctx, merkle.Key("persisted"), merkle.Value("value"))
	require.NoError(t, err)
	require.NoError(t, n.Close())

	rootKey := root.Key
	n2, err := Open(ctx, cfg, self, &rootKey)
	require.NoError(t, err)
	defer n2.Close()

	value, found, err := n2.Get(ctx, merkle.Key("persisted"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, merkle.Value("value"), value)
}
