package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thistonyuncle/docstore/collatable"
	"github.com/thistonyuncle/docstore/store"
)

func openTestIndex(t *testing.T) (*store.DataFile, *Index) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.docstore")
	df, err := store.Open(path, store.Options{Create: true, Writeable: true, Backend: store.BackendLogStructured})
	require.NoError(t, err)
	t.Cleanup(func() { df.Close() })
	ks, err := df.KeyStore("byTitle", store.Capabilities{Sequences: true})
	require.NoError(t, err)
	return df, Open(ks)
}

func TestRowKeyOrdersByEmittedKeyThenDoc(t *testing.T) {
	k1 := RowKey(collatable.String("alice"), "doc1", 0)
	k2 := RowKey(collatable.String("bob"), "doc2", 0)
	assert.Less(t, string(k1), string(k2))
}

func TestRowKeyDistinguishesEmitIndex(t *testing.T) {
	k0 := RowKey(collatable.Int(1), "doc1", 0)
	k1 := RowKey(collatable.Int(1), "doc1", 1)
	assert.NotEqual(t, k0, k1)
}

func TestIndexWriterUpdateInsertsRows(t *testing.T) {
	df, idx := openTestIndex(t)
	w := NewWriter(idx)
	defer w.Close()

	var rowCount int64
	txn, err := df.BeginTransaction()
	require.NoError(t, err)
	changed, err := w.Update("doc1", 1, []Emitted{
		{Key: collatable.String("fiction"), Value: []byte("v1")},
	}, txn, &rowCount)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NoError(t, txn.Commit())
	assert.Equal(t, int64(1), rowCount)

	r, err := idx.KeyStore().Get(RowKey(collatable.String("fiction"), "doc1", 0), false)
	require.NoError(t, err)
	assert.True(t, r.Exists)
	assert.Equal(t, []byte("v1"), []byte(r.Body))
}

func TestIndexWriterUpdateIsNoopWhenUnchanged(t *testing.T) {
	df, idx := openTestIndex(t)
	w := NewWriter(idx)
	defer w.Close()

	emitted := []Emitted{{Key: collatable.String("fiction"), Value: []byte("v1")}}
	var rowCount int64

	txn, _ := df.BeginTransaction()
	_, err := w.Update("doc1", 1, emitted, txn, &rowCount)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn, _ = df.BeginTransaction()
	changed, err := w.Update("doc1", 2, emitted, txn, &rowCount)
	require.NoError(t, err)
	assert.False(t, changed)
	require.NoError(t, txn.Commit())
	assert.Equal(t, int64(1), rowCount)
}

func TestIndexWriterUpdateReplacesChangedKeys(t *testing.T) {
	df, idx := openTestIndex(t)
	w := NewWriter(idx)
	defer w.Close()

	var rowCount int64
	txn, _ := df.BeginTransaction()
	_, err := w.Update("doc1", 1, []Emitted{
		{Key: collatable.String("fiction"), Value: []byte("v1")},
	}, txn, &rowCount)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn, _ = df.BeginTransaction()
	changed, err := w.Update("doc1", 2, []Emitted{
		{Key: collatable.String("mystery"), Value: []byte("v2")},
	}, txn, &rowCount)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NoError(t, txn.Commit())
	assert.Equal(t, int64(1), rowCount)

	old, err := idx.KeyStore().Get(RowKey(collatable.String("fiction"), "doc1", 0), false)
	require.NoError(t, err)
	assert.False(t, old.Exists)

	fresh, err := idx.KeyStore().Get(RowKey(collatable.String("mystery"), "doc1", 0), false)
	require.NoError(t, err)
	assert.True(t, fresh.Exists)
}

func TestIndexWriterUpdateRemovesAllRowsWhenNothingEmitted(t *testing.T) {
	df, idx := openTestIndex(t)
	w := NewWriter(idx)
	defer w.Close()

	var rowCount int64
	txn, _ := df.BeginTransaction()
	_, err := w.Update("doc1", 1, []Emitted{
		{Key: collatable.String("fiction"), Value: []byte("v1")},
		{Key: collatable.String("adventure"), Value: []byte("v2")},
	}, txn, &rowCount)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
	assert.Equal(t, int64(2), rowCount)

	txn, _ = df.BeginTransaction()
	changed, err := w.Update("doc1", 2, nil, txn, &rowCount)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NoError(t, txn.Commit())
	assert.Equal(t, int64(0), rowCount)

	r, err := idx.KeyStore().Get(RowKey(collatable.String("fiction"), "doc1", 0), false)
	require.NoError(t, err)
	assert.False(t, r.Exists)
}

func TestIndexEnumeratorVisitsSingleRange(t *testing.T) {
	df, idx := openTestIndex(t)
	w := NewWriter(idx)

	var rowCount int64
	txn, _ := df.BeginTransaction()
	for i, doc := range []string{"doc1", "doc2", "doc3"} {
		_, err := w.Update(doc, uint64(i+1), []Emitted{
			{Key: collatable.String(doc), Value: []byte(doc)},
		}, txn, &rowCount)
		require.NoError(t, err)
	}
	require.NoError(t, txn.Commit())
	w.Close()

	en := NewEnumerator(idx, []KeyRange{{
		Min:          RowKey(collatable.String("doc1"), "", 0),
		Max:          RowKey(collatable.String("doc3"), "\xff", 0),
		InclusiveEnd: true,
	}}, store.DefaultEnumOptions(), nil)
	defer en.Close()

	var got []string
	for {
		ok, err := en.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, string(en.Row().Value))
	}
	assert.ElementsMatch(t, []string{"doc1", "doc2", "doc3"}, got)
}

func TestIndexEnumeratorAppliesApproveAndLimit(t *testing.T) {
	df, idx := openTestIndex(t)
	w := NewWriter(idx)

	var rowCount int64
	txn, _ := df.BeginTransaction()
	for i, doc := range []string{"doc1", "doc2", "doc3", "doc4"} {
		_, err := w.Update(doc, uint64(i+1), []Emitted{
			{Key: collatable.Int(int64(i)), Value: []byte(doc)},
		}, txn, &rowCount)
		require.NoError(t, err)
	}
	require.NoError(t, txn.Commit())
	w.Close()

	opts := store.DefaultEnumOptions()
	opts.Limit = 2
	approveEven := func(key []byte) bool {
		r := collatable.NewReader(key)
		if err := r.BeginArray(); err != nil {
			return false
		}
		n, err := r.ReadInt()
		if err != nil {
			return false
		}
		return n%2 == 0
	}
	en := NewEnumerator(idx, []KeyRange{{InclusiveEnd: true}}, opts, approveEven)
	defer en.Close()

	var got []string
	for {
		ok, err := en.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, string(en.Row().Value))
	}
	assert.Len(t, got, 2)
}
