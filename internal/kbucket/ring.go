package kbucket

import "math/big"

// two256 is 2^256, the ring's modulus (spec §3: "maximum distance is 2^255").
var two256 = new(big.Int).Lsh(big.NewInt(1), 256)

// Distance computes the ring distance between two 256-bit IDs:
// min(|a-b|, 2^256-|a-b|) (spec §3).
func Distance(a, b ItemKey) *big.Int {
	ai := new(big.Int).SetBytes(a[:])
	bi := new(big.Int).SetBytes(b[:])
	diff := new(big.Int).Sub(ai, bi)
	diff.Abs(diff)

	complement := new(big.Int).Sub(two256, diff)
	if complement.Cmp(diff) < 0 {
		return complement
	}
	return diff
}

// closer reports whether a is strictly closer to pivot than b.
func closer(pivot, a, b ItemKey) bool {
	return Distance(pivot, a).Cmp(Distance(pivot, b)) < 0
}

// hasBit reports the value of bit pos (0 = most significant) in n.
func hasBit(n byte, pos uint) bool {
	return n&(1<<(7-pos)) > 0
}

// prefixLen returns the number of leading bits a and b share, used
// only to size-bound the routing table into B buckets the way the
// teacher's bucketIndex does (spec §4.2's "route by successive
// bits"); it never drives the actual nearness comparisons above,
// which are always the ring metric.
func prefixLen(a, b ItemKey) int {
	for byteIdx := 0; byteIdx < len(a); byteIdx++ {
		xor := a[byteIdx] ^ b[byteIdx]
		if xor == 0 {
			continue
		}
		for bitIdx := uint(0); bitIdx < 8; bitIdx++ {
			if hasBit(xor, bitIdx) {
				return byteIdx*8 + int(bitIdx)
			}
		}
	}
	return len(a) * 8 // identical keys
}

// bucketIndexFor maps an item's shared-prefix length with self to a
// bucket slot in [0, B). Identical keys (self) map to the last slot,
// mirroring the teacher's "identical IDs" fallback.
func bucketIndexFor(self, item ItemKey) int {
	pl := prefixLen(self, item)
	if pl >= B {
		return B - 1
	}
	return B - pl - 1
}

// idLess compares two IDs as unsigned big-endian integers, used by
// to_ring_list's ascending sort (spec §4.2), independent of distance.
func idLess(a, b ItemKey) bool {
	ai := new(big.Int).SetBytes(a[:])
	bi := new(big.Int).SetBytes(b[:])
	return ai.Cmp(bi) < 0
}
