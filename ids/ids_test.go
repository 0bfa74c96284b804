package ids

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashModuleDeterministic(t *testing.T) {
	a := HashModule([]byte("wasm bytes"))
	b := HashModule([]byte("wasm bytes"))
	require.Equal(t, a, b)

	c := HashModule([]byte("other bytes"))
	require.NotEqual(t, a, c)
}

func TestHashBytesDeterministic(t *testing.T) {
	a := HashBytes([]byte{1, 2, 3})
	b := HashBytes([]byte{1, 2, 3})
	require.Equal(t, a, b)

	c := HashBytes([]byte{1, 2, 4})
	require.NotEqual(t, a, c)
}

func TestModuleIdFromBytesRejectsWrongLength(t *testing.T) {
	_, ok := ModuleIdFromBytes(make([]byte, Size-1))
	require.False(t, ok)

	_, ok = ModuleIdFromBytes(make([]byte, Size+1))
	require.False(t, ok)

	id, ok := ModuleIdFromBytes(make([]byte, Size))
	require.True(t, ok)
	require.True(t, id.IsZero())
}

func TestCompareAndLess(t *testing.T) {
	var a, b ModuleId
	a[0], b[0] = 1, 2

	require.Negative(t, Compare(a, b))
	require.Positive(t, Compare(b, a))
	require.Zero(t, Compare(a, a))
	require.True(t, Less(a, b))
	require.False(t, Less(b, a))
}

func TestWorldCommitIdXORCommutativeAndAssociative(t *testing.T) {
	s1 := HashBytes([]byte("one"))
	s2 := HashBytes([]byte("two"))
	s3 := HashBytes([]byte("three"))

	var forward, backward, regrouped WorldCommitId
	forward.XOR(s1)
	forward.XOR(s2)
	forward.XOR(s3)

	backward.XOR(s3)
	backward.XOR(s2)
	backward.XOR(s1)

	regrouped.XOR(s2)
	regrouped.XOR(s1)
	regrouped.XOR(s3)

	require.Equal(t, forward, backward)
	require.Equal(t, forward, regrouped)
}

func TestWorldCommitIdXORSelfCancels(t *testing.T) {
	s := HashBytes([]byte("payload"))

	var w WorldCommitId
	w.XOR(s)
	w.XOR(s)

	require.Equal(t, WorldCommitId{}, w)
}

func TestWorldCommitIdFromBytesRoundTrip(t *testing.T) {
	var w WorldCommitId
	w.XOR(HashBytes([]byte("payload")))

	got, ok := WorldCommitIdFromBytes(w.Bytes())
	require.True(t, ok)
	require.Equal(t, w, got)

	_, ok = WorldCommitIdFromBytes(w.Bytes()[:Size-1])
	require.False(t, ok)
}

func TestStringIsStableHex(t *testing.T) {
	id := HashModule([]byte("wasm bytes"))
	require.Len(t, id.String(), Size*2)
	require.Equal(t, id.String(), id.String())
}
