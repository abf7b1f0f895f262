package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumeranet/corekad/internal/merkle"
	corekaderrors "github.com/lumeranet/corekad/pkg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var key merkle.StoreKey
	copy(key[:], []byte("thirty-two-byte-content-hash-ab"))

	require.NoError(t, s.Write(ctx, key, []byte("payload")))
	got, err := s.Read(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)
}

func TestReadMissingKeyReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	var key merkle.StoreKey
	_, err := s.Read(context.Background(), key)
	require.True(t, corekaderrors.Is(err, corekaderrors.ErrNotFound))
}

func TestWriteIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var key merkle.StoreKey
	copy(key[:], []byte("idempotent-write-test-key-value"))

	require.NoError(t, s.Write(ctx, key, []byte("v1")))
	require.NoError(t, s.Write(ctx, key, []byte("v1")))

	count, err := s.NodeCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRefCountTracksRetainAndRelease(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var key merkle.StoreKey
	copy(key[:], []byte("refcount-test-key-value-abcdefg"))

	require.NoError(t, s.Retain(ctx, key))
	require.NoError(t, s.Retain(ctx, key))
	count, err := s.RefCount(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	require.NoError(t, s.Release(ctx, key))
	count, err = s.RefCount(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRefCountFloorsAtZero(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var key merkle.StoreKey
	copy(key[:], []byte("floor-at-zero-test-key-abcdefgh"))

	require.NoError(t, s.Release(ctx, key))
	count, err := s.RefCount(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
