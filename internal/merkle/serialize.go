package merkle

import (
	"github.com/lumeranet/corekad/pkg/canon"
	"github.com/lumeranet/corekad/pkg/hashutil"
)

// kv is an in-memory (key, value) pair, canon-encoded once at the
// boundary and carried as raw bytes everywhere below.
type kv struct {
	key   []byte
	value []byte
}

func prefixTerm(p Prefix) canon.Term {
	return canon.List(canon.Int(int64(p.Len)), canon.Bytes(p.Bytes))
}

// groupTerm builds the canonical term for one hash-vector slot's
// contents: "each group begins with the two-element header
// [group_index, prefix], followed by its (key,value) entries sorted
// by key bytes" (spec §4.1).
func groupTerm(slot int, prefix Prefix, entries []kv) canon.Term {
	header := canon.List(canon.Int(int64(slot)), prefixTerm(prefix))
	pairs := make([]canon.KV, len(entries))
	for i, e := range entries {
		pairs[i] = canon.KV{Key: e.key, Value: e.value}
	}
	return canon.SortedPairList(header, pairs)
}

// groupHash is a leaf's hash-vector[slot]: H(serialise(group_list)).
func groupHash(slot int, prefix Prefix, entries []kv) ([KeySize]byte, error) {
	encoded, err := canon.Encode(groupTerm(slot, prefix, entries))
	if err != nil {
		return [KeySize]byte{}, err
	}
	return hashutil.Sum(encoded), nil
}

// innerSlotHash is one slot of an Inner node's hash-vector:
// H(serialise([left_hash_vector[i], right_hash_vector[i]])) (spec §4.1).
func innerSlotHash(left, right [KeySize]byte) ([KeySize]byte, error) {
	encoded, err := canon.Encode(canon.List(canon.Bytes(left[:]), canon.Bytes(right[:])))
	if err != nil {
		return [KeySize]byte{}, err
	}
	return hashutil.Sum(encoded), nil
}

// hashVectorTerm is the term whose hash is a node's exposed root_hash:
// H(serialise(hash_vector)) (spec §3, §4.1).
func hashVectorTerm(hv HashVector) canon.Term {
	items := make([]canon.Term, LeafSize)
	for i, slot := range hv.Slots {
		items[i] = canon.Bytes(slot[:])
	}
	return canon.List(items...)
}

func rootHashOf(hv HashVector) ([KeySize]byte, error) {
	encoded, err := canon.Encode(hashVectorTerm(hv))
	if err != nil {
		return [KeySize]byte{}, err
	}
	return hashutil.Sum(encoded), nil
}

// kind tags a stored node's variant (spec §3: Leaf | Inner).
type kind byte

const (
	kindLeaf kind = iota
	kindInner
)

// storedNode is the on-disk shape of a Leaf or Inner: the fields
// needed to recompute its hash-vector without touching children, plus
// the cache itself so a proof never has to rehash a subtree it only
// needs to fetch a cached slot from (spec §9's storage note on
// avoiding recomputation).
type storedNode struct {
	kind   kind
	prefix Prefix
	cache  HashVector

	// leaf-only
	groups [LeafSize][]kv

	// inner-only
	left, right StoreKey
}

func (n *storedNode) term() canon.Term {
	fields := []canon.Term{
		canon.Int(int64(n.kind)),
		prefixTerm(n.prefix),
		hashVectorTerm(n.cache),
		canon.Int(int64(n.cache.Count)),
	}
	if n.kind == kindLeaf {
		groupTerms := make([]canon.Term, LeafSize)
		for i, g := range n.groups {
			groupTerms[i] = groupTerm(i, n.prefix, g)
		}
		fields = append(fields, canon.List(groupTerms...))
	} else {
		fields = append(fields, canon.Bytes(n.left[:]), canon.Bytes(n.right[:]))
	}
	return canon.List(fields...)
}

// encode returns the bytes whose hash is this node's StoreKey.
func (n *storedNode) encode() ([]byte, error) {
	return canon.Encode(n.term())
}

func (n *storedNode) storeKey() (StoreKey, error) {
	encoded, err := n.encode()
	if err != nil {
		return StoreKey{}, err
	}
	return StoreKey(hashutil.Sum(encoded)), nil
}

func decodeNode(data []byte) (*storedNode, error) {
	t, err := canon.Decode(data)
	if err != nil {
		return nil, err
	}
	fields := t.List
	if len(fields) < 5 {
		return nil, errMalformed("node has %d fields", len(fields))
	}
	n := &storedNode{kind: kind(fields[0].Int)}

	pf := fields[1].List
	if len(pf) != 2 {
		return nil, errMalformed("prefix has %d fields", len(pf))
	}
	n.prefix = Prefix{Len: int(pf[0].Int), Bytes: pf[1].Bytes}

	hv := fields[2].List
	if len(hv) != LeafSize {
		return nil, errMalformed("hash vector has %d slots", len(hv))
	}
	for i, s := range hv {
		copy(n.cache.Slots[i][:], s.Bytes)
	}
	n.cache.Count = int(fields[3].Int)

	switch n.kind {
	case kindLeaf:
		groups := fields[4].List
		if len(groups) != LeafSize {
			return nil, errMalformed("leaf has %d groups", len(groups))
		}
		for i, g := range groups {
			pairs := g.List[1:] // skip the [index, prefix] header term
			entries := make([]kv, len(pairs))
			for j, pair := range pairs {
				entries[j] = kv{key: pair.List[0].Bytes, value: pair.List[1].Bytes}
			}
			n.groups[i] = entries
		}
	case kindInner:
		if len(fields) < 6 {
			return nil, errMalformed("inner node has %d fields", len(fields))
		}
		copy(n.left[:], fields[4].Bytes)
		copy(n.right[:], fields[5].Bytes)
	default:
		return nil, errMalformed("unknown node kind %d", n.kind)
	}
	return n, nil
}
