package merkle

import (
	"context"

	corekaderrors "github.com/lumeranet/corekad/pkg/errors"
	"github.com/lumeranet/corekad/pkg/hashutil"
)

var emptyPrefix = Prefix{}

// emptyLeaf is the canonical empty tree: a single Leaf with no
// entries in any of its LeafSize groups. It never needs a Store round
// trip — new() must work before a single byte has been persisted —
// but once a mutation touches it, it freezes into the store like any
// other node (spec §8, S1: "root_hash(new()) is a fixed 32-byte constant").
func emptyLeaf() *storedNode {
	return &storedNode{kind: kindLeaf, prefix: emptyPrefix}
}

func computeCache(n *storedNode) error {
	switch n.kind {
	case kindLeaf:
		count := 0
		for i, g := range n.groups {
			h, err := groupHash(i, n.prefix, g)
			if err != nil {
				return err
			}
			n.cache.Slots[i] = h
			count += len(g)
		}
		n.cache.Count = count
	case kindInner:
		return corekaderrors.Invariantf("computeCache called on Inner without child hash-vectors")
	}
	return nil
}

func combineInner(prefix Prefix, left, right StoreKey, leftHV, rightHV HashVector) (*storedNode, error) {
	n := &storedNode{kind: kindInner, prefix: prefix, left: left, right: right}
	for i := 0; i < LeafSize; i++ {
		h, err := innerSlotHash(leftHV.Slots[i], rightHV.Slots[i])
		if err != nil {
			return nil, err
		}
		n.cache.Slots[i] = h
	}
	n.cache.Count = leftHV.Count + rightHV.Count
	return n, nil
}

// freeze computes n's StoreKey and idempotently persists it: it reads
// before it writes so re-inserting identical content never issues a
// second Store.Write (spec §8 property 4).
func freeze(ctx context.Context, store Store, n *storedNode) (StoreKey, error) {
	key, err := n.storeKey()
	if err != nil {
		return StoreKey{}, err
	}
	if _, err := store.Read(ctx, key); err == nil {
		return key, nil
	} else if !corekaderrors.Is(err, ErrNotFound) {
		return StoreKey{}, err
	}
	encoded, err := n.encode()
	if err != nil {
		return StoreKey{}, err
	}
	if err := store.Write(ctx, key, encoded); err != nil {
		return StoreKey{}, err
	}
	return key, nil
}

func loadNode(ctx context.Context, store Store, key StoreKey) (*storedNode, error) {
	empty := emptyLeaf()
	if err := computeCache(empty); err != nil {
		return nil, err
	}
	emptyKey, err := empty.storeKey()
	if err != nil {
		return nil, err
	}
	if key == emptyKey {
		return empty, nil
	}
	raw, err := store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	return decodeNode(raw)
}

// New returns the handle for the canonical empty tree (spec §5, S1).
func New() Root {
	empty := emptyLeaf()
	_ = computeCache(empty)
	key, _ := empty.storeKey()
	return Root{Key: StoreKey(key)}
}

// Restore validates that key names a node reachable in store and
// returns its handle (spec §5).
func Restore(ctx context.Context, store Store, key StoreKey) (Root, error) {
	if _, err := loadNode(ctx, store, key); err != nil {
		return Root{}, err
	}
	return Root{Key: key}, nil
}

func hashKey(k Key) [KeySize]byte { return hashutil.Sum(k) }

// Get returns the value stored for k, if any (spec §5).
func Get(ctx context.Context, store Store, root Root, k Key) (Value, bool, error) {
	hashed := hashKey(k)
	cur := root.Key
	for {
		node, err := loadNode(ctx, store, cur)
		if err != nil {
			return nil, false, err
		}
		if node.kind == kindLeaf {
			slot := Slot(hashed[:])
			for _, e := range node.groups[slot] {
				if string(e.key) == string(k) {
					return Value(e.value), true, nil
				}
			}
			return nil, false, nil
		}
		if Bit(hashed[:], node.prefix.Len) {
			cur = node.right
		} else {
			cur = node.left
		}
	}
}

// Member reports whether k has a value under root (spec §5).
func Member(ctx context.Context, store Store, root Root, k Key) (bool, error) {
	_, ok, err := Get(ctx, store, root, k)
	return ok, err
}

// buildFromEntries recursively splits or merges a flat entry list into
// a fresh, frozen subtree rooted at prefix (spec §4.1's split/merge
// rules, applied uniformly since both directions are "rebalance until
// every leaf holds at most LeafSize entries").
func buildFromEntries(ctx context.Context, store Store, prefix Prefix, entries []kv) (StoreKey, HashVector, error) {
	if len(entries) <= LeafSize {
		n := &storedNode{kind: kindLeaf, prefix: prefix}
		for _, e := range entries {
			hashed := hashKey(e.key)
			slot := Slot(hashed[:])
			n.groups[slot] = append(n.groups[slot], e)
		}
		if err := computeCache(n); err != nil {
			return StoreKey{}, HashVector{}, err
		}
		key, err := freeze(ctx, store, n)
		return key, n.cache, err
	}

	var leftEntries, rightEntries []kv
	for _, e := range entries {
		hashed := hashKey(e.key)
		if Bit(hashed[:], prefix.Len) {
			rightEntries = append(rightEntries, e)
		} else {
			leftEntries = append(leftEntries, e)
		}
	}
	leftKey, leftHV, err := buildFromEntries(ctx, store, prefix.Extend(false), leftEntries)
	if err != nil {
		return StoreKey{}, HashVector{}, err
	}
	rightKey, rightHV, err := buildFromEntries(ctx, store, prefix.Extend(true), rightEntries)
	if err != nil {
		return StoreKey{}, HashVector{}, err
	}
	n, err := combineInner(prefix, leftKey, rightKey, leftHV, rightHV)
	if err != nil {
		return StoreKey{}, HashVector{}, err
	}
	key, err := freeze(ctx, store, n)
	return key, n.cache, err
}

func gatherEntries(ctx context.Context, store Store, key StoreKey) ([]kv, error) {
	node, err := loadNode(ctx, store, key)
	if err != nil {
		return nil, err
	}
	if node.kind == kindLeaf {
		var out []kv
		for _, g := range node.groups {
			out = append(out, g...)
		}
		return out, nil
	}
	left, err := gatherEntries(ctx, store, node.left)
	if err != nil {
		return nil, err
	}
	right, err := gatherEntries(ctx, store, node.right)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

// set is the single mutating primitive both Insert and Delete reduce
// to: writing value (possibly the zero-value deletion sentinel) at k
// (spec §4.1: "a Value equal to 32 zero bytes is equivalent to key absence").
func set(ctx context.Context, store Store, cur StoreKey, k Key, v Value) (StoreKey, HashVector, error) {
	node, err := loadNode(ctx, store, cur)
	if err != nil {
		return StoreKey{}, HashVector{}, err
	}
	hashed := hashKey(k)

	if node.kind == kindLeaf {
		flat := map[string]kv{}
		for _, g := range node.groups {
			for _, e := range g {
				flat[string(e.key)] = e
			}
		}
		if v.IsZero() {
			delete(flat, string(k))
		} else {
			flat[string(k)] = kv{key: []byte(k), value: []byte(v)}
		}
		entries := make([]kv, 0, len(flat))
		for _, e := range flat {
			entries = append(entries, e)
		}
		return buildFromEntries(ctx, store, node.prefix, entries)
	}

	goRight := Bit(hashed[:], node.prefix.Len)
	var childKey, siblingKey StoreKey
	if goRight {
		childKey, siblingKey = node.right, node.left
	} else {
		childKey, siblingKey = node.left, node.right
	}

	newChildKey, newChildHV, err := set(ctx, store, childKey, k, v)
	if err != nil {
		return StoreKey{}, HashVector{}, err
	}
	siblingNode, err := loadNode(ctx, store, siblingKey)
	if err != nil {
		return StoreKey{}, HashVector{}, err
	}

	total := newChildHV.Count + siblingNode.cache.Count
	if total <= LeafSize {
		var entries []kv
		childEntries, err := gatherEntries(ctx, store, newChildKey)
		if err != nil {
			return StoreKey{}, HashVector{}, err
		}
		siblingEntries, err := gatherEntries(ctx, store, siblingKey)
		if err != nil {
			return StoreKey{}, HashVector{}, err
		}
		entries = append(entries, childEntries...)
		entries = append(entries, siblingEntries...)
		return buildFromEntries(ctx, store, node.prefix, entries)
	}

	var left, right StoreKey
	var leftHV, rightHV HashVector
	if goRight {
		left, leftHV = siblingKey, siblingNode.cache
		right, rightHV = newChildKey, newChildHV
	} else {
		left, leftHV = newChildKey, newChildHV
		right, rightHV = siblingKey, siblingNode.cache
	}
	n, err := combineInner(node.prefix, left, right, leftHV, rightHV)
	if err != nil {
		return StoreKey{}, HashVector{}, err
	}
	key, err := freeze(ctx, store, n)
	return key, n.cache, err
}

// Insert writes (k, v) into root, returning the new root (spec §5).
func Insert(ctx context.Context, store Store, root Root, k Key, v Value) (Root, error) {
	key, _, err := set(ctx, store, root.Key, k, v)
	if err != nil {
		return Root{}, err
	}
	return root.cloneWithKey(key), nil
}

func (r Root) cloneWithKey(key StoreKey) Root {
	r.Key = key
	return r
}

// InsertMany applies each (k, v) pair in order, returning the final
// root (spec §5).
func InsertMany(ctx context.Context, store Store, root Root, pairs []KeyValue) (Root, error) {
	cur := root
	for _, p := range pairs {
		var err error
		cur, err = Insert(ctx, store, cur, p.Key, p.Value)
		if err != nil {
			return Root{}, err
		}
	}
	return cur, nil
}

// KeyValue is one pair for InsertMany.
type KeyValue struct {
	Key   Key
	Value Value
}

// Delete removes k from root, returning the new root (spec §5). It is
// exactly Insert with the zero-value deletion sentinel.
func Delete(ctx context.Context, store Store, root Root, k Key) (Root, error) {
	return Insert(ctx, store, root, k, make(Value, KeySize))
}

// Size returns the total key count under root (spec §5).
func Size(ctx context.Context, store Store, root Root) (int, error) {
	node, err := loadNode(ctx, store, root.Key)
	if err != nil {
		return 0, err
	}
	return node.cache.Count, nil
}

// BucketCount returns the number of Leaf nodes reachable from root
// (spec §5).
func BucketCount(ctx context.Context, store Store, root Root) (int, error) {
	node, err := loadNode(ctx, store, root.Key)
	if err != nil {
		return 0, err
	}
	if node.kind == kindLeaf {
		return 1, nil
	}
	left, err := BucketCount(ctx, store, Root{Key: node.left})
	if err != nil {
		return 0, err
	}
	right, err := BucketCount(ctx, store, Root{Key: node.right})
	if err != nil {
		return 0, err
	}
	return left + right, nil
}

// ToList returns every (key, value) pair reachable from root, in
// left-to-right tree order — stable for a given tree shape, but not
// sorted by key (spec §5).
func ToList(ctx context.Context, store Store, root Root) ([]KeyValue, error) {
	entries, err := gatherEntries(ctx, store, root.Key)
	if err != nil {
		return nil, err
	}
	out := make([]KeyValue, len(entries))
	for i, e := range entries {
		out[i] = KeyValue{Key: Key(e.key), Value: Value(e.value)}
	}
	return out, nil
}

// RootHash returns H(serialise(hash_vector)) for root's node (spec §5, S1).
func RootHash(ctx context.Context, store Store, root Root) ([KeySize]byte, error) {
	node, err := loadNode(ctx, store, root.Key)
	if err != nil {
		return [KeySize]byte{}, err
	}
	return rootHashOf(node.cache)
}

// RootHashes returns root's raw 16-slot hash-vector (spec §5's
// supplemented root_hashes operation).
func RootHashes(ctx context.Context, store Store, root Root) (HashVector, error) {
	node, err := loadNode(ctx, store, root.Key)
	if err != nil {
		return HashVector{}, err
	}
	return node.cache, nil
}

// KeyChange describes one key's value transition between two roots
// (SPEC_FULL supplemented Diff operation).
type KeyChange struct {
	Key      Key
	Old, New Value // New == nil means the key was deleted
}

// Diff enumerates every key whose value differs between oldRoot and
// newRoot, pruning any subtree whose StoreKey is unchanged between the
// two roots (content-addressing means an identical StoreKey can only
// mean identical content underneath it, spec §8 property 4) so the
// cost is O(shared structure), not O(tree size).
func Diff(ctx context.Context, store Store, oldRoot, newRoot Root) ([]KeyChange, error) {
	return diffNodes(ctx, store, oldRoot.Key, newRoot.Key)
}

func diffNodes(ctx context.Context, store Store, oldKey, newKey StoreKey) ([]KeyChange, error) {
	if oldKey == newKey {
		return nil, nil
	}

	oldNode, err := loadNode(ctx, store, oldKey)
	if err != nil {
		return nil, err
	}
	newNode, err := loadNode(ctx, store, newKey)
	if err != nil {
		return nil, err
	}

	if oldNode.kind == kindInner && newNode.kind == kindInner {
		leftChanges, err := diffNodes(ctx, store, oldNode.left, newNode.left)
		if err != nil {
			return nil, err
		}
		rightChanges, err := diffNodes(ctx, store, oldNode.right, newNode.right)
		if err != nil {
			return nil, err
		}
		return append(leftChanges, rightChanges...), nil
	}

	// At least one side is a leaf (two differing leaves, or a leaf
	// split into an inner node, or vice versa, on one side only): fall
	// back to a direct entry-by-entry comparison of this subtree, the
	// only case Diff can't prune.
	oldEntries, err := gatherEntries(ctx, store, oldKey)
	if err != nil {
		return nil, err
	}
	newEntries, err := gatherEntries(ctx, store, newKey)
	if err != nil {
		return nil, err
	}
	oldMap := make(map[string]Value, len(oldEntries))
	for _, e := range oldEntries {
		oldMap[string(e.key)] = Value(e.value)
	}
	newMap := make(map[string]Value, len(newEntries))
	for _, e := range newEntries {
		newMap[string(e.key)] = Value(e.value)
	}

	var changes []KeyChange
	for k, ov := range oldMap {
		if nv, ok := newMap[k]; !ok {
			changes = append(changes, KeyChange{Key: Key(k), Old: ov, New: nil})
		} else if string(nv) != string(ov) {
			changes = append(changes, KeyChange{Key: Key(k), Old: ov, New: nv})
		}
	}
	for k, nv := range newMap {
		if _, ok := oldMap[k]; !ok {
			changes = append(changes, KeyChange{Key: Key(k), Old: nil, New: nv})
		}
	}
	return changes, nil
}
