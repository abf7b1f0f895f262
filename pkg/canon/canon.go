// Package canon implements the Serialiser collaborator: a
// deterministic, self-describing encoding over nested
// lists/binaries/integers that the core uses both for hash-vector
// signatures (spec §4.1) and for node persistence (spec §6).
//
// Determinism comes from two rules: the wire struct below never uses a
// Go map (whose key order jsoniter would otherwise need to sort), and
// every list is built by the caller in an already-fixed order — for
// bucket groups that means sorting (key, value) pairs by key bytes
// before constructing the Term, per spec §6's "Serialiser
// determinism" note.
package canon

import (
	"sort"

	jsoniter "github.com/json-iterator/go"
)

var api = jsoniter.ConfigCompatibleWithStandardLibrary

// Term is the self-describing value canon encodes: a byte string, a
// signed integer, or an ordered list of Terms.
type Term struct {
	Tag   byte   `json:"t"`
	Bytes []byte `json:"b,omitempty"`
	Int   int64  `json:"i,omitempty"`
	List  []Term `json:"l,omitempty"`
}

const (
	tagBytes byte = 'b'
	tagInt   byte = 'i'
	tagList  byte = 'l'
)

// Bytes wraps a byte string as a Term.
func Bytes(b []byte) Term {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Term{Tag: tagBytes, Bytes: cp}
}

// Int wraps a signed integer as a Term.
func Int(i int64) Term {
	return Term{Tag: tagInt, Int: i}
}

// List wraps an ordered sequence of Terms as a Term. The caller is
// responsible for ordering items deterministically before calling List.
func List(items ...Term) Term {
	return Term{Tag: tagList, List: items}
}

// Encode serialises t deterministically.
func Encode(t Term) ([]byte, error) {
	return api.Marshal(t)
}

// Decode parses bytes produced by Encode.
func Decode(data []byte) (Term, error) {
	var t Term
	err := api.Unmarshal(data, &t)
	return t, err
}

// KV is a single (key, value) pair prior to sorting.
type KV struct {
	Key   []byte
	Value []byte
}

// SortedPairList builds a List Term out of pairs sorted by key bytes,
// satisfying the Serialiser's determinism contract regardless of the
// physical insertion order the caller collected them in.
func SortedPairList(header Term, pairs []KV) Term {
	sorted := make([]KV, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool {
		return string(sorted[i].Key) < string(sorted[j].Key)
	})

	items := make([]Term, 0, len(sorted)+1)
	items = append(items, header)
	for _, kv := range sorted {
		items = append(items, List(Bytes(kv.Key), Bytes(kv.Value)))
	}
	return List(items...)
}
