package cache

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumeranet/corekad/internal/merkle"
)

type countingStore struct {
	mu    sync.Mutex
	data  map[merkle.StoreKey][]byte
	reads int
}

func newCountingStore() *countingStore {
	return &countingStore{data: map[merkle.StoreKey][]byte{}}
}

func (s *countingStore) Read(_ context.Context, key merkle.StoreKey) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	data, ok := s.data[key]
	if !ok {
		return nil, merkle.ErrNotFound
	}
	return data, nil
}

func (s *countingStore) Write(_ context.Context, key merkle.StoreKey, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func testKey(b byte) merkle.StoreKey {
	var k merkle.StoreKey
	k[0] = b
	return k
}

func TestReadPopulatesCacheOnMiss(t *testing.T) {
	backing := newCountingStore()
	key := testKey(1)
	backing.data[key] = []byte("hello")

	c, err := New(backing, DefaultOptions())
	require.NoError(t, err)
	defer c.Close(context.Background())

	_, err = c.Read(context.Background(), key)
	require.NoError(t, err)
	c.Wait()

	_, err = c.Read(context.Background(), key)
	require.NoError(t, err)

	require.Equal(t, 1, backing.reads)
}

func TestWritePopulatesCacheWithoutExtraRead(t *testing.T) {
	backing := newCountingStore()
	c, err := New(backing, DefaultOptions())
	require.NoError(t, err)
	defer c.Close(context.Background())

	key := testKey(2)
	require.NoError(t, c.Write(context.Background(), key, []byte("v")))
	c.Wait()

	got, err := c.Read(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
	require.Equal(t, 0, backing.reads)
}
