package merkle

import (
	"context"
	"sync"
)

// memStore is a trivial in-memory Store used by the package's own
// tests; internal/store/sqlite provides the production implementation
// of the same contract.
type memStore struct {
	mu   sync.RWMutex
	data map[StoreKey][]byte
	// writes counts calls that actually reached the map, to verify the
	// idempotent-write property (spec §8 property 4).
	writes int
}

func newMemStore() *memStore {
	return &memStore{data: map[StoreKey][]byte{}}
}

func (s *memStore) Read(_ context.Context, key StoreKey) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *memStore) Write(_ context.Context, key StoreKey, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return nil
	}
	s.data[key] = value
	s.writes++
	return nil
}
