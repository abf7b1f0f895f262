package merkle

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIsFixedConstant(t *testing.T) {
	// S1: root_hash(new()) is a fixed 32-byte constant, independent of store.
	store := newMemStore()
	ctx := context.Background()

	r1 := New()
	r2 := New()
	require.Equal(t, r1.Key, r2.Key)

	h1, err := RootHash(ctx, store, r1)
	require.NoError(t, err)
	h2, err := RootHash(ctx, store, r2)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	size, err := Size(ctx, store, r1)
	require.NoError(t, err)
	require.Equal(t, 0, size)
}

func TestInsertGetRoundTrip(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	root := New()

	root, err := Insert(ctx, store, root, Key("alpha"), Value("1"))
	require.NoError(t, err)
	root, err = Insert(ctx, store, root, Key("beta"), Value("2"))
	require.NoError(t, err)

	v, ok, err := Get(ctx, store, root, Key("alpha"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Value("1"), v)

	_, ok, err = Get(ctx, store, root, Key("missing"))
	require.NoError(t, err)
	require.False(t, ok)

	size, err := Size(ctx, store, root)
	require.NoError(t, err)
	require.Equal(t, 2, size)
}

// S2: order-independence — root_hash depends only on final content.
func TestRootHashPermutationInvariant(t *testing.T) {
	ctx := context.Background()
	pairs := []KeyValue{
		{Key: Key("k0"), Value: Value("v0")},
		{Key: Key("k1"), Value: Value("v1")},
		{Key: Key("k2"), Value: Value("v2")},
		{Key: Key("k3"), Value: Value("v3")},
		{Key: Key("k4"), Value: Value("v4")},
	}

	storeA := newMemStore()
	rootA, err := InsertMany(ctx, storeA, New(), pairs)
	require.NoError(t, err)

	shuffled := append([]KeyValue(nil), pairs...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	storeB := newMemStore()
	rootB, err := InsertMany(ctx, storeB, New(), shuffled)
	require.NoError(t, err)

	hashA, err := RootHash(ctx, storeA, rootA)
	require.NoError(t, err)
	hashB, err := RootHash(ctx, storeB, rootB)
	require.NoError(t, err)
	require.Equal(t, hashA, hashB)
}

// S3: split then delete back down converges to the same root_hash as
// never having inserted the extra keys, since Merge is bottom-up and
// unconditional once a subtree's count drops to LeafSize or below.
func TestSplitThenMergeConverges(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	base := []KeyValue{}
	for i := 0; i < 10; i++ {
		base = append(base, KeyValue{Key: IntKey(uint64(i)), Value: IntValue(uint64(i + 1))})
	}
	baseRoot, err := InsertMany(ctx, store, New(), base)
	require.NoError(t, err)
	baseHash, err := RootHash(ctx, store, baseRoot)
	require.NoError(t, err)

	extra := []KeyValue{}
	for i := 10; i < 40; i++ {
		extra = append(extra, KeyValue{Key: IntKey(uint64(i)), Value: IntValue(uint64(i + 1))})
	}
	grown, err := InsertMany(ctx, store, baseRoot, extra)
	require.NoError(t, err)

	shrunk := grown
	for i := 10; i < 40; i++ {
		shrunk, err = Delete(ctx, store, shrunk, IntKey(uint64(i)))
		require.NoError(t, err)
	}

	shrunkHash, err := RootHash(ctx, store, shrunk)
	require.NoError(t, err)
	require.Equal(t, baseHash, shrunkHash)
}

// property 4: re-inserting the same (k, v) issues no new store writes.
func TestIdenticalInsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	root, err := Insert(ctx, store, New(), Key("k"), Value("v"))
	require.NoError(t, err)

	writesBefore := store.writes
	again, err := Insert(ctx, store, root, Key("k"), Value("v"))
	require.NoError(t, err)
	require.Equal(t, root.Key, again.Key)
	require.Equal(t, writesBefore, store.writes)
}

func TestDeleteWithZeroValueSentinel(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	root, err := Insert(ctx, store, New(), Key("k"), Value("v"))
	require.NoError(t, err)

	root, err = Insert(ctx, store, root, Key("k"), make(Value, 32))
	require.NoError(t, err)

	_, ok, err := Get(ctx, store, root, Key("k"))
	require.NoError(t, err)
	require.False(t, ok)

	rootHash, err := RootHash(ctx, store, root)
	require.NoError(t, err)
	emptyHash, err := RootHash(ctx, store, New())
	require.NoError(t, err)
	require.Equal(t, emptyHash, rootHash)
}

func TestToListCoversAllInsertedKeys(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pairs := []KeyValue{}
	for i := 0; i < 50; i++ {
		pairs = append(pairs, KeyValue{Key: IntKey(uint64(i)), Value: IntValue(uint64(i))})
	}
	root, err := InsertMany(ctx, store, New(), pairs)
	require.NoError(t, err)

	list, err := ToList(ctx, store, root)
	require.NoError(t, err)
	require.Len(t, list, 50)

	seen := map[string]bool{}
	for _, kvp := range list {
		seen[string(kvp.Key)] = true
	}
	for _, p := range pairs {
		require.True(t, seen[string(p.Key)])
	}
}

// property 5: verify(proof, root_hash(T), k) == get(T, k) for both
// membership and absence.
func TestProofRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pairs := []KeyValue{}
	for i := 0; i < 30; i++ {
		pairs = append(pairs, KeyValue{Key: IntKey(uint64(i)), Value: IntValue(uint64(i * 2))})
	}
	root, err := InsertMany(ctx, store, New(), pairs)
	require.NoError(t, err)
	rootHash, err := RootHash(ctx, store, root)
	require.NoError(t, err)

	for _, p := range pairs {
		proof, err := GetProof(ctx, store, root, p.Key)
		require.NoError(t, err)
		v, ok := VerifyProof(proof, rootHash, p.Key)
		require.True(t, ok)
		require.Equal(t, p.Value, v)
	}

	absentKey := IntKey(999)
	proof, err := GetProof(ctx, store, root, absentKey)
	require.NoError(t, err)
	v, ok := VerifyProof(proof, rootHash, absentKey)
	require.True(t, ok)
	require.Nil(t, v)
}

func TestProofRejectsWrongRootHash(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	root, err := Insert(ctx, store, New(), Key("k"), Value("v"))
	require.NoError(t, err)

	proof, err := GetProof(ctx, store, root, Key("k"))
	require.NoError(t, err)

	var wrong [KeySize]byte
	wrong[0] = 0xff
	_, ok := VerifyProof(proof, wrong, Key("k"))
	require.False(t, ok)
}

func TestDiffReportsInsertsUpdatesAndDeletes(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	root, err := InsertMany(ctx, store, New(), []KeyValue{
		{Key: Key("keep"), Value: Value("1")},
		{Key: Key("update"), Value: Value("1")},
		{Key: Key("remove"), Value: Value("1")},
	})
	require.NoError(t, err)

	next, err := Insert(ctx, store, root, Key("update"), Value("2"))
	require.NoError(t, err)
	next, err = Delete(ctx, store, next, Key("remove"))
	require.NoError(t, err)
	next, err = Insert(ctx, store, next, Key("added"), Value("1"))
	require.NoError(t, err)

	changes, err := Diff(ctx, store, root, next)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	byKey := map[string]KeyChange{}
	for _, c := range changes {
		byKey[string(c.Key)] = c
	}
	require.Equal(t, Value("2"), byKey["update"].New)
	require.Nil(t, byKey["remove"].New)
	require.Equal(t, Value("1"), byKey["added"].New)
}

func TestRootHashesLengthAndBucketCount(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pairs := []KeyValue{}
	for i := 0; i < 60; i++ {
		pairs = append(pairs, KeyValue{Key: IntKey(uint64(i)), Value: IntValue(uint64(i))})
	}
	root, err := InsertMany(ctx, store, New(), pairs)
	require.NoError(t, err)

	hv, err := RootHashes(ctx, store, root)
	require.NoError(t, err)
	require.Equal(t, 60, hv.Count)

	buckets, err := BucketCount(ctx, store, root)
	require.NoError(t, err)
	require.GreaterOrEqual(t, buckets, 1)
}
