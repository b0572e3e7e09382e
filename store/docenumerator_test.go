package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDocs(t *testing.T, ks *KeyStore, df *DataFile, keys ...string) {
	t.Helper()
	txn, err := df.BeginTransaction()
	require.NoError(t, err)
	for _, k := range keys {
		_, err := ks.Set([]byte(k), nil, []byte("body-"+k), txn)
		require.NoError(t, err)
	}
	require.NoError(t, txn.Commit())
}

func TestEnumerateKeyRangeAscending(t *testing.T) {
	df := openTestDataFile(t)
	ks := mustKeyStore(t, df, Capabilities{Sequences: true})
	seedDocs(t, ks, df, "a", "b", "c", "d")

	e, err := ks.Enumerate([]byte("b"), []byte("c"), DefaultEnumOptions())
	require.NoError(t, err)

	var got []string
	for e.Next() {
		got = append(got, string(e.Record().Key))
	}
	assert.Equal(t, []string{"b", "c"}, got)
}

func TestEnumerateKeyRangeExclusiveEnd(t *testing.T) {
	df := openTestDataFile(t)
	ks := mustKeyStore(t, df, Capabilities{Sequences: true})
	seedDocs(t, ks, df, "a", "b", "c", "d")

	opts := DefaultEnumOptions()
	opts.InclusiveEnd = false
	e, err := ks.Enumerate([]byte("b"), []byte("c"), opts)
	require.NoError(t, err)

	var got []string
	for e.Next() {
		got = append(got, string(e.Record().Key))
	}
	assert.Equal(t, []string{"b"}, got)
}

func TestEnumerateDescending(t *testing.T) {
	df := openTestDataFile(t)
	ks := mustKeyStore(t, df, Capabilities{Sequences: true})
	seedDocs(t, ks, df, "a", "b", "c")

	opts := DefaultEnumOptions()
	opts.Descending = true
	e, err := ks.Enumerate(nil, nil, opts)
	require.NoError(t, err)

	var got []string
	for e.Next() {
		got = append(got, string(e.Record().Key))
	}
	assert.Equal(t, []string{"c", "b", "a"}, got)
}

func TestEnumerateSkipAndLimit(t *testing.T) {
	df := openTestDataFile(t)
	ks := mustKeyStore(t, df, Capabilities{Sequences: true})
	seedDocs(t, ks, df, "a", "b", "c", "d", "e")

	opts := DefaultEnumOptions()
	opts.Skip = 1
	opts.Limit = 2
	e, err := ks.Enumerate(nil, nil, opts)
	require.NoError(t, err)

	var got []string
	for e.Next() {
		got = append(got, string(e.Record().Key))
	}
	assert.Equal(t, []string{"b", "c"}, got)
}

func TestEnumerateExhaustionIsIdempotent(t *testing.T) {
	df := openTestDataFile(t)
	ks := mustKeyStore(t, df, Capabilities{Sequences: true})
	seedDocs(t, ks, df, "a")

	e, err := ks.Enumerate(nil, nil, DefaultEnumOptions())
	require.NoError(t, err)
	assert.True(t, e.Next())
	assert.False(t, e.Next())
	assert.False(t, e.Next())
}

func TestEnumerateExcludesDeletedByDefault(t *testing.T) {
	df := openTestDataFile(t)
	ks := mustKeyStore(t, df, Capabilities{Sequences: true, SoftDeletes: true})
	seedDocs(t, ks, df, "a", "b")

	txn, _ := df.BeginTransaction()
	ks.Delete([]byte("a"), txn)
	require.NoError(t, txn.Commit())

	e, err := ks.Enumerate(nil, nil, DefaultEnumOptions())
	require.NoError(t, err)
	var got []string
	for e.Next() {
		got = append(got, string(e.Record().Key))
	}
	assert.Equal(t, []string{"b"}, got)

	opts := DefaultEnumOptions()
	opts.IncludeDeleted = true
	e, err = ks.Enumerate(nil, nil, opts)
	require.NoError(t, err)
	got = nil
	for e.Next() {
		got = append(got, string(e.Record().Key))
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestEnumerateSequenceRange(t *testing.T) {
	df := openTestDataFile(t)
	ks := mustKeyStore(t, df, Capabilities{Sequences: true})
	seedDocs(t, ks, df, "a", "b", "c")

	e, err := ks.EnumerateSequenceRange(2, 3, DefaultEnumOptions())
	require.NoError(t, err)
	var got []string
	for e.Next() {
		got = append(got, string(e.Record().Key))
	}
	assert.Equal(t, []string{"b", "c"}, got)
}

func TestEnumerateKeysExplicitList(t *testing.T) {
	df := openTestDataFile(t)
	ks := mustKeyStore(t, df, Capabilities{Sequences: true})
	seedDocs(t, ks, df, "a", "b", "c")

	e, err := ks.EnumerateKeys([][]byte{[]byte("c"), []byte("missing"), []byte("a")}, DefaultEnumOptions())
	require.NoError(t, err)
	var got []string
	for e.Next() {
		got = append(got, string(e.Record().Key))
	}
	assert.Equal(t, []string{"c", "a"}, got)
}
