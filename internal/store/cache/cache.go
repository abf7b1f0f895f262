// Package cache adds a ristretto read-through layer in front of a
// merkle.Store, grounded on sdk/task/cache.go's
// *ristretto.Cache[K, V]-backed cache: same per-key locking discipline
// for read-modify-write, generalized from a task-status cache to node
// bytes keyed by StoreKey. Each entry's admission cost is its byte
// length, so MaxCost bounds the cached bytes.
package cache

import (
	"context"
	"sync"

	"github.com/btcsuite/btcutil/base58"
	"github.com/dgraph-io/ristretto/v2"

	"github.com/lumeranet/corekad/internal/merkle"
	corekaderrors "github.com/lumeranet/corekad/pkg/errors"
	"github.com/lumeranet/corekad/pkg/logtrace"
)

// Store wraps a merkle.Store with an in-memory ristretto cache. HBMM
// nodes are immutable once written (StoreKey is a content hash), so
// there is no invalidation to manage: a cache hit is always correct,
// and a miss just falls through to the backing store. Keys are
// base58-encoded, the same string-keyed shape TaskCache uses for its
// ristretto cache, and the same encoding p2p/kademlia/dht.go uses to
// turn raw key bytes into map keys (closestMap[base58.Encode(...)]).
type Store struct {
	backing merkle.Store
	cache   *ristretto.Cache[string, []byte]

	// writeLocks serializes concurrent Writes of the same key,
	// mirroring TaskCache's getOrCreateMutex pattern. Each Write still
	// reaches the backing store; the backing store's own idempotent
	// write keeps a repeated key to one stored copy.
	writeLocks sync.Map
}

func cacheKey(key merkle.StoreKey) string { return base58.Encode(key[:]) }

// Options configures the ristretto cache sizing.
type Options struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

// DefaultOptions sizes the cache for a moderate node working set: 1e5
// tracked keys, 64MB of cached node bytes.
func DefaultOptions() Options {
	return Options{NumCounters: 1e5, MaxCost: 1 << 26, BufferItems: 64}
}

// New wraps backing with a read-through cache.
func New(backing merkle.Store, opts Options) (*Store, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: opts.NumCounters,
		MaxCost:     opts.MaxCost,
		BufferItems: opts.BufferItems,
	})
	if err != nil {
		return nil, corekaderrors.Wrap(err, "cache: create ristretto cache")
	}
	return &Store{backing: backing, cache: c}, nil
}

func (s *Store) lockFor(key string) *sync.Mutex {
	mu, _ := s.writeLocks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Read implements merkle.Store, serving from cache when possible.
func (s *Store) Read(ctx context.Context, key merkle.StoreKey) ([]byte, error) {
	ck := cacheKey(key)
	if data, ok := s.cache.Get(ck); ok {
		return data, nil
	}

	data, err := s.backing.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ck, data, int64(len(data)))
	return data, nil
}

// Write implements merkle.Store, populating the cache on success so a
// subsequent Read never round-trips to the backing store for a node
// this process just wrote.
func (s *Store) Write(ctx context.Context, key merkle.StoreKey, value []byte) error {
	ck := cacheKey(key)
	mu := s.lockFor(ck)
	mu.Lock()
	defer mu.Unlock()

	if err := s.backing.Write(ctx, key, value); err != nil {
		return err
	}
	s.cache.Set(ck, value, int64(len(value)))
	return nil
}

// Wait blocks until ristretto has drained its internal set buffer,
// useful in tests asserting on cache contents right after a write.
func (s *Store) Wait() { s.cache.Wait() }

// Close releases cache resources. It does not close the backing
// store, whose lifetime the caller owns.
func (s *Store) Close(ctx context.Context) {
	logtrace.Debug(ctx, "closing node cache", logtrace.Fields{logtrace.FieldModule: logtrace.ValueModuleStore})
	s.cache.Close()
}
