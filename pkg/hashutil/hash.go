// Package hashutil implements the Hash collaborator required by the
// core: a collision-resistant hash(bytes) -> 32 bytes function shared
// by the Merkle map, the routing table's item keys, and the search
// driver's distance calculations.
package hashutil

import (
	"encoding/binary"
	"io"

	"lukechampine.com/blake3"
)

// Size is the fixed output length of Sum, in bytes.
const Size = 32

// Sum hashes b and returns the 32-byte digest.
func Sum(b []byte) [Size]byte {
	var out [Size]byte
	h := blake3.New(Size, nil)
	h.Write(b)
	copy(out[:], h.Sum(nil))
	return out
}

// SumBytes is Sum with a []byte return, for call sites that don't want
// to deal with array-to-slice conversions.
func SumBytes(b []byte) []byte {
	sum := Sum(b)
	return sum[:]
}

// Streaming hashes r incrementally, avoiding loading large payloads into
// memory. Nothing in this module calls it; Sum covers the in-memory
// payloads the core hashes.
func Streaming(r io.Reader, bufSize int) ([Size]byte, error) {
	var out [Size]byte
	if bufSize <= 0 {
		bufSize = 1 << 20
	}
	h := blake3.New(Size, nil)
	buf := make([]byte, bufSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}
	}
	copy(out[:], h.Sum(nil))
	return out, nil
}

// CanonicalizeUint canonicalises a non-negative integer key into the
// 32-byte big-endian encoding the core hashes keys from (spec §3).
func CanonicalizeUint(v uint64) []byte {
	buf := make([]byte, Size)
	binary.BigEndian.PutUint64(buf[Size-8:], v)
	return buf
}

// IsZero reports whether v is the all-zero 32-byte value, the sentinel
// the core treats as "absent" for values (spec §3). Keys are not
// checked against it.
func IsZero(v []byte) bool {
	if len(v) != Size {
		return false
	}
	for _, b := range v {
		if b != 0 {
			return false
		}
	}
	return true
}
