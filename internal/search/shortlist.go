package search

import (
	"math/big"
	"sort"
	"sync"

	"github.com/lumeranet/corekad/internal/kbucket"
)

// candidate is one peer under consideration, tracked through the
// queryable -> queried -> visited states spec §4.3 names.
type candidate struct {
	item     *kbucket.PeerItem
	dist     *big.Int
	queried  bool
	visited  bool
	failures uint32
}

// shortlist is the driver's working set: every peer discovered so
// far, ordered by distance to target, with enough state to pick the
// next queryable batch from the K-nearest window (spec §4.3). It does
// not track a min_distance bound.
type shortlist struct {
	mu     sync.Mutex
	target kbucket.ItemKey
	byKey  map[kbucket.ItemKey]*candidate
}

func newShortlist(target kbucket.ItemKey, seeds []*kbucket.PeerItem) *shortlist {
	s := &shortlist{target: target, byKey: map[kbucket.ItemKey]*candidate{}}
	s.add(seeds)
	return s
}

// add inserts newly-discovered peers, ignoring ones already known.
func (s *shortlist) add(items []*kbucket.PeerItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if item == nil || item.IsSelf() {
			continue
		}
		if _, ok := s.byKey[item.Key]; ok {
			continue
		}
		s.byKey[item.Key] = &candidate{item: item, dist: kbucket.Distance(s.target, item.Key)}
	}
}

// sortedLocked returns every candidate ordered by ascending distance.
// Caller must hold s.mu.
func (s *shortlist) sortedLocked() []*candidate {
	out := make([]*candidate, 0, len(s.byKey))
	for _, c := range s.byKey {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].dist.Cmp(out[j].dist) < 0 })
	return out
}

// nextQueryable returns up to n not-yet-queried candidates from
// within the current top-k window, marking them queried so no other
// worker claims them.
func (s *shortlist) nextQueryable(k, n int) []*candidate {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.sortedLocked()
	if k < len(all) {
		all = all[:k]
	}
	out := make([]*candidate, 0, n)
	for _, c := range all {
		if len(out) == n {
			break
		}
		if !c.queried {
			c.queried = true
			out = append(out, c)
		}
	}
	return out
}

func (s *shortlist) markVisited(key kbucket.ItemKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byKey[key]; ok {
		c.visited = true
	}
}

// recordFailure marks a candidate queried-but-unvisited and returns
// its running failure count, for the eviction hook (spec §7).
func (s *shortlist) recordFailure(key kbucket.ItemKey) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byKey[key]
	if !ok {
		return 0
	}
	c.failures++
	return c.failures
}

// closestVisited returns the k nearest visited peers, sorted ascending.
func (s *shortlist) closestVisited(k int) []*kbucket.PeerItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sortedLocked()
	out := make([]*kbucket.PeerItem, 0, k)
	for _, c := range all {
		if !c.visited {
			continue
		}
		out = append(out, c.item)
		if len(out) == k {
			break
		}
	}
	return out
}
