package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDataFile(t *testing.T) *DataFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.docstore")
	df, err := Open(path, Options{Create: true, Writeable: true, Backend: BackendLogStructured})
	require.NoError(t, err)
	t.Cleanup(func() { df.Close() })
	return df
}

func mustKeyStore(t *testing.T, df *DataFile, caps Capabilities) *KeyStore {
	t.Helper()
	ks, err := df.KeyStore("docs", caps)
	require.NoError(t, err)
	return ks
}

func TestKeyStoreSetAndGet(t *testing.T) {
	df := openTestDataFile(t)
	ks := mustKeyStore(t, df, Capabilities{Sequences: true})

	txn, err := df.BeginTransaction()
	require.NoError(t, err)
	seq, err := ks.Set([]byte("doc1"), []byte("meta1"), []byte("body1"), txn)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	require.NoError(t, txn.Commit())

	r, err := ks.Get([]byte("doc1"), false)
	require.NoError(t, err)
	assert.True(t, r.Exists)
	assert.Equal(t, []byte("meta1"), []byte(r.Meta))
	assert.Equal(t, []byte("body1"), []byte(r.Body))
	assert.Equal(t, uint64(1), r.Sequence)
}

func TestKeyStoreGetMissingIsNotAnError(t *testing.T) {
	df := openTestDataFile(t)
	ks := mustKeyStore(t, df, Capabilities{})

	r, err := ks.Get([]byte("nope"), false)
	require.NoError(t, err)
	assert.False(t, r.Exists)
}

func TestKeyStoreGetBySequence(t *testing.T) {
	df := openTestDataFile(t)
	ks := mustKeyStore(t, df, Capabilities{Sequences: true})

	txn, _ := df.BeginTransaction()
	ks.Set([]byte("a"), nil, []byte("1"), txn)
	seq, _ := ks.Set([]byte("b"), nil, []byte("2"), txn)
	require.NoError(t, txn.Commit())

	r, err := ks.GetBySequence(seq, false)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), []byte(r.Key))

	_, err = ks.GetBySequence(999, false)
	assert.Error(t, err)
}

func TestKeyStoreGetBySequenceWithoutCapability(t *testing.T) {
	df := openTestDataFile(t)
	ks := mustKeyStore(t, df, Capabilities{})
	_, err := ks.GetBySequence(1, false)
	assert.Error(t, err)
}

func TestKeyStoreSoftDelete(t *testing.T) {
	df := openTestDataFile(t)
	ks := mustKeyStore(t, df, Capabilities{Sequences: true, SoftDeletes: true})

	txn, _ := df.BeginTransaction()
	ks.Set([]byte("doc1"), nil, []byte("body"), txn)
	require.NoError(t, txn.Commit())

	txn, _ = df.BeginTransaction()
	removed, err := ks.Delete([]byte("doc1"), txn)
	require.NoError(t, err)
	assert.True(t, removed)
	require.NoError(t, txn.Commit())

	r, err := ks.Get([]byte("doc1"), false)
	require.NoError(t, err)
	assert.True(t, r.Exists)
	assert.True(t, r.Deleted)
}

func TestKeyStoreHardDelete(t *testing.T) {
	df := openTestDataFile(t)
	ks := mustKeyStore(t, df, Capabilities{})

	txn, _ := df.BeginTransaction()
	ks.Set([]byte("doc1"), nil, []byte("body"), txn)
	require.NoError(t, txn.Commit())

	txn, _ = df.BeginTransaction()
	removed, err := ks.Delete([]byte("doc1"), txn)
	require.NoError(t, err)
	assert.True(t, removed)
	require.NoError(t, txn.Commit())

	r, err := ks.Get([]byte("doc1"), false)
	require.NoError(t, err)
	assert.False(t, r.Exists)
}

func TestKeyStoreErase(t *testing.T) {
	df := openTestDataFile(t)
	ks := mustKeyStore(t, df, Capabilities{Sequences: true})

	txn, _ := df.BeginTransaction()
	ks.Set([]byte("doc1"), nil, []byte("body"), txn)
	require.NoError(t, txn.Commit())

	txn, _ = df.BeginTransaction()
	require.NoError(t, ks.Erase(txn))
	require.NoError(t, txn.Commit())

	r, _ := ks.Get([]byte("doc1"), false)
	assert.False(t, r.Exists)
	assert.Equal(t, uint64(0), ks.LastSequence())
}

func TestDataFileCompactRemovesTombstones(t *testing.T) {
	df := openTestDataFile(t)
	ks := mustKeyStore(t, df, Capabilities{Sequences: true, SoftDeletes: true})

	txn, _ := df.BeginTransaction()
	ks.Set([]byte("doc1"), nil, []byte("body"), txn)
	require.NoError(t, txn.Commit())

	txn, _ = df.BeginTransaction()
	ks.Delete([]byte("doc1"), txn)
	require.NoError(t, txn.Commit())

	require.NoError(t, df.Compact(nil))
	assert.Equal(t, uint64(1), df.PurgeCount())

	r, err := ks.Get([]byte("doc1"), false)
	require.NoError(t, err)
	assert.False(t, r.Exists)
}
