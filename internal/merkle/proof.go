package merkle

import "context"

// Step is one Inner level crossed while descending to k's leaf: which
// side k took, and the untaken sibling's hash-vector value at k's
// slot — the only sibling value the fold needs to reconstruct that
// one slot all the way to the root (spec §5's get_proof description).
type Step struct {
	WentRight bool
	Peer      [KeySize]byte
}

// Proof is a compact membership/absence proof for one key (spec §5).
// Verification recomputes hash_vector[Slot] at the root by folding
// Steps leaf-to-root, then reinserts it into RootOtherSlots to
// recompute the full 16-slot vector and, from that, root_hash — so a
// verifier only needs the proof, H, and the root_hash they already
// trust, exactly as spec §5 promises.
type Proof struct {
	Slot           int
	Steps          []Step // leaf-to-root order
	LeafPrefix     Prefix
	LeafEntries    []KeyValue
	RootOtherSlots [LeafSize][KeySize]byte
}

// GetProof builds a Proof for k against root (spec §5).
func GetProof(ctx context.Context, store Store, root Root, k Key) (Proof, error) {
	hashed := hashKey(k)
	slot := Slot(hashed[:])

	rootNode, err := loadNode(ctx, store, root.Key)
	if err != nil {
		return Proof{}, err
	}

	var steps []Step
	cur := rootNode
	for cur.kind == kindInner {
		goRight := Bit(hashed[:], cur.prefix.Len)
		var siblingKey, childKey StoreKey
		if goRight {
			childKey, siblingKey = cur.right, cur.left
		} else {
			childKey, siblingKey = cur.left, cur.right
		}
		siblingNode, err := loadNode(ctx, store, siblingKey)
		if err != nil {
			return Proof{}, err
		}
		steps = append(steps, Step{WentRight: goRight, Peer: siblingNode.cache.Slots[slot]})
		cur, err = loadNode(ctx, store, childKey)
		if err != nil {
			return Proof{}, err
		}
	}

	entries := make([]KeyValue, len(cur.groups[slot]))
	for i, e := range cur.groups[slot] {
		entries[i] = KeyValue{Key: Key(e.key), Value: Value(e.value)}
	}

	// reverse to leaf-to-root order for the verifier's fold.
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}

	return Proof{
		Slot:           slot,
		Steps:          steps,
		LeafPrefix:     cur.prefix,
		LeafEntries:    entries,
		RootOtherSlots: rootNode.cache.Slots,
	}, nil
}

// VerifyProof checks proof against rootHash for key k, returning the
// value k maps to (or nil for provable absence) and whether the proof
// is valid (spec §5, §8 property 5: verify(proof, root_hash(T), k) == get(T, k)).
func VerifyProof(proof Proof, rootHash [KeySize]byte, k Key) (Value, bool) {
	hashed := hashKey(k)
	if Slot(hashed[:]) != proof.Slot {
		return nil, false
	}

	entries := make([]kv, len(proof.LeafEntries))
	for i, e := range proof.LeafEntries {
		entries[i] = kv{key: []byte(e.Key), value: []byte(e.Value)}
	}
	cur, err := groupHash(proof.Slot, proof.LeafPrefix, entries)
	if err != nil {
		return nil, false
	}

	for _, step := range proof.Steps {
		var err error
		if step.WentRight {
			cur, err = innerSlotHash(step.Peer, cur)
		} else {
			cur, err = innerSlotHash(cur, step.Peer)
		}
		if err != nil {
			return nil, false
		}
	}

	slots := proof.RootOtherSlots
	slots[proof.Slot] = cur
	computed, err := rootHashOf(HashVector{Slots: slots})
	if err != nil || computed != rootHash {
		return nil, false
	}

	for _, e := range proof.LeafEntries {
		if string(e.Key) == string(k) {
			return e.Value, true
		}
	}
	return nil, true
}
