package vvec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) VersionVector {
	t.Helper()
	vv, err := Parse(s)
	require.NoError(t, err)
	return vv
}

func TestParseAndString(t *testing.T) {
	vv := mustParse(t, "3@peerA,1@peerB")
	assert.Equal(t, "3@peerA,1@peerB", vv.String())
	cur, ok := vv.Current()
	require.True(t, ok)
	assert.Equal(t, Version{Generation: 3, Author: "peerA"}, cur)
}

func TestParseRejectsDuplicateAuthor(t *testing.T) {
	_, err := Parse("1@peerA,2@peerA")
	assert.Error(t, err)
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "nogen", "0@peerA", "1@"} {
		_, err := Parse(s)
		assert.Error(t, err, s)
	}
}

func TestCompareToSame(t *testing.T) {
	a := mustParse(t, "2@peerA,1@peerB")
	b := mustParse(t, "2@peerA,1@peerB")
	assert.Equal(t, Same, a.CompareTo(b))
}

func TestCompareToNewerAndOlder(t *testing.T) {
	a := mustParse(t, "3@peerA")
	b := mustParse(t, "2@peerA")
	assert.Equal(t, Newer, a.CompareTo(b))
	assert.Equal(t, Older, b.CompareTo(a))
}

func TestCompareToConflicting(t *testing.T) {
	a := mustParse(t, "2@peerA,1@peerB")
	b := mustParse(t, "1@peerA,2@peerB")
	assert.Equal(t, Conflicting, a.CompareTo(b))
}

func TestCompareToSingle(t *testing.T) {
	a := mustParse(t, "2@peerA")
	assert.Equal(t, Newer, a.CompareToSingle(Version{Generation: 1, Author: "peerA"}))
	assert.Equal(t, Older, a.CompareToSingle(Version{Generation: 3, Author: "peerA"}))
	assert.Equal(t, Same, a.CompareToSingle(Version{Generation: 2, Author: "peerA"}))
}

func TestIncrementGen(t *testing.T) {
	vv := mustParse(t, "2@peerB")
	vv2 := vv.IncrementGen("peerA")
	cur, _ := vv2.Current()
	assert.Equal(t, Version{Generation: 1, Author: "peerA"}, cur)

	vv3 := vv2.IncrementGen("peerA")
	cur, _ = vv3.Current()
	assert.Equal(t, Version{Generation: 2, Author: "peerA"}, cur)
}

func TestMergedWithTakesMaxGeneration(t *testing.T) {
	a := mustParse(t, "3@peerA,1@peerB")
	b := mustParse(t, "1@peerA,2@peerB")
	merged := a.MergedWith(b)
	assert.Equal(t, uint64(3), merged.genOf("peerA"))
	assert.Equal(t, uint64(2), merged.genOf("peerB"))
}

func TestSubstituteAndRestorePeerID(t *testing.T) {
	vv := mustParse(t, "2@*")
	exported := vv.SubstitutePeerID("real-peer-id")
	assert.Equal(t, "2@real-peer-id", exported.String())

	restored := exported.RestorePeerID("real-peer-id")
	assert.Equal(t, "2@*", restored.String())
}

func TestBinaryRoundTrip(t *testing.T) {
	vv := mustParse(t, "3@peerA,1@peerB")
	data := vv.EncodeBinary()
	decoded, err := DecodeBinary(data)
	require.NoError(t, err)
	assert.Equal(t, vv.String(), decoded.String())
}
