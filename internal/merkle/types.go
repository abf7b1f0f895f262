// Package merkle implements the Hash-Backed Merkle Map (HBMM): an
// authenticated key/value mapping with snapshot semantics and
// structural sharing backed by a content-addressed store (spec §4.1).
//
// It has no direct teacher analogue in mateeullahmalik-supernode2 —
// the routing table and search driver do, the authenticated state
// tree does not — so its variant-node shape is grounded on
// coniks-sys-coniks-go/merkletree (a tagged interior/leaf/empty node
// tree with cached hashes and gob-style structural persistence),
// adapted from a fixed-depth binary trie over an index bitstring to
// this spec's dynamically split/merged Leaf-or-Inner tree with a
// 16-way hash-vector per node instead of a single hash, and backed by
// the content-addressed Store collaborator instead of an in-memory
// pointer tree.
package merkle

import "github.com/lumeranet/corekad/pkg/hashutil"

// LeafSize is the maximum number of entries a Leaf may hold before it
// splits, and the width of every node's hash-vector (spec §3: LEAF_SIZE = 16).
const LeafSize = 16

// KeySize is the width of a hashed slot key / StoreKey (spec §3).
const KeySize = hashutil.Size

// Key is a canonicalised key: an arbitrary byte string, or the 32-byte
// big-endian encoding of a non-negative integer produced by IntKey
// (spec §3). The core never canonicalises on the caller's behalf for
// byte-string keys — only integer keys need the helper.
type Key []byte

// IntKey canonicalises a non-negative integer key into its 32-byte
// big-endian encoding (spec §3).
func IntKey(v uint64) Key { return Key(hashutil.CanonicalizeUint(v)) }

// Value is an arbitrary byte string, or the 32-byte big-endian
// encoding of a non-negative integer. A Value equal to 32 zero bytes
// is semantically absence; writing it deletes the key (spec §3).
type Value []byte

// IntValue canonicalises a non-negative integer value.
func IntValue(v uint64) Value { return Value(hashutil.CanonicalizeUint(v)) }

// IsZero reports whether v is the 32-zero-byte deletion sentinel.
func (v Value) IsZero() bool { return hashutil.IsZero(v) }

// StoreKey is the content-address of a serialised node: H(serialise(node)).
type StoreKey [KeySize]byte

// Root is the handle produced by every mutating operation: a StoreKey
// identifying the current root, plus an options map the core never
// interprets (spec §3).
type Root struct {
	Key     StoreKey
	options map[string]any
}

// Options returns the opaque options map, which mutations carry over
// to the Root they return (SPEC_FULL supplemented operation). Restore
// returns a Root with no options.
func (r Root) Options() map[string]any {
	if r.options == nil {
		return map[string]any{}
	}
	return r.options
}

// WithOptions returns a copy of r carrying opts, without touching the
// tree it identifies.
func (r Root) WithOptions(opts map[string]any) Root {
	r.options = opts
	return r
}

// HashVector is a node's per-slot Merkle signature plus the total key
// count beneath it (spec §3).
type HashVector struct {
	Slots [LeafSize][KeySize]byte
	Count int
}

// Prefix is the bitstring common to every key routed into a subtree
// (spec §3): the leading Len bits of Bytes, MSB-first.
type Prefix struct {
	Len   int
	Bytes []byte
}

// Bit returns the value of the i-th MSB-first bit of a 32-byte hash.
func Bit(hash []byte, i int) bool {
	return hash[i/8]&(1<<uint(7-i%8)) != 0
}

// Extend returns the prefix one bit longer, with bit appended.
func (p Prefix) Extend(bit bool) Prefix {
	out := Prefix{Len: p.Len + 1, Bytes: append([]byte(nil), p.Bytes...)}
	byteIdx := p.Len / 8
	for len(out.Bytes) <= byteIdx {
		out.Bytes = append(out.Bytes, 0)
	}
	if bit {
		out.Bytes[byteIdx] |= 1 << uint(7-p.Len%8)
	}
	return out
}

// Slot computes the hash-vector slot a key hash lands in: the last
// byte of the hash, mod LeafSize (spec §4.1).
func Slot(hashed []byte) int {
	return int(hashed[len(hashed)-1]) % LeafSize
}
