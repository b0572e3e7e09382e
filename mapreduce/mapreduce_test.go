package mapreduce

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thistonyuncle/docstore/collatable"
	"github.com/thistonyuncle/docstore/index"
	"github.com/thistonyuncle/docstore/store"
)

func openDataFile(t *testing.T, name string) *store.DataFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	df, err := store.Open(path, store.Options{Create: true, Writeable: true, Backend: store.BackendLogStructured})
	require.NoError(t, err)
	t.Cleanup(func() { df.Close() })
	return df
}

func byTitleMap(docID string, rec store.Record) []index.Emitted {
	if len(rec.Body) == 0 {
		return nil
	}
	return []index.Emitted{{Key: collatable.String(string(rec.Body)), Value: []byte(docID)}}
}

func TestIndexerIndexesNewDocuments(t *testing.T) {
	source := openDataFile(t, "source.docstore")
	sourceKS, err := source.KeyStore("default", store.Capabilities{Sequences: true, SoftDeletes: true})
	require.NoError(t, err)

	indexDF := openDataFile(t, "byTitle.docstore")
	indexKS, err := indexDF.KeyStore("rows", store.Capabilities{Sequences: true})
	require.NoError(t, err)

	mi, err := Open(indexDF, indexKS, byTitleMap, "byTitle", 1, "")
	require.NoError(t, err)

	txn, err := source.BeginTransaction()
	require.NoError(t, err)
	_, err = sourceKS.Set([]byte("doc1"), nil, []byte("alpha"), txn)
	require.NoError(t, err)
	_, err = sourceKS.Set([]byte("doc2"), nil, []byte("beta"), txn)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	ixr := NewIndexer(source, sourceKS, []*MapReduceIndex{mi}, nil)
	require.NoError(t, ixr.Run())

	assert.Equal(t, int64(2), mi.RowCount())
	assert.Equal(t, sourceKS.LastSequence(), mi.LastSequenceIndexed())

	r, err := indexKS.Get(index.RowKey(collatable.String("alpha"), "doc1", 0), false)
	require.NoError(t, err)
	assert.True(t, r.Exists)
}

func TestIndexerIsIncremental(t *testing.T) {
	source := openDataFile(t, "source.docstore")
	sourceKS, _ := source.KeyStore("default", store.Capabilities{Sequences: true, SoftDeletes: true})
	indexDF := openDataFile(t, "byTitle.docstore")
	indexKS, _ := indexDF.KeyStore("rows", store.Capabilities{Sequences: true})

	mi, err := Open(indexDF, indexKS, byTitleMap, "byTitle", 1, "")
	require.NoError(t, err)
	ixr := NewIndexer(source, sourceKS, []*MapReduceIndex{mi}, nil)

	txn, _ := source.BeginTransaction()
	sourceKS.Set([]byte("doc1"), nil, []byte("alpha"), txn)
	require.NoError(t, txn.Commit())
	require.NoError(t, ixr.Run())
	assert.Equal(t, int64(1), mi.RowCount())

	// Second run with no new documents is a no-op (startingSequence finds no work).
	require.NoError(t, ixr.Run())
	assert.Equal(t, int64(1), mi.RowCount())

	txn, _ = source.BeginTransaction()
	sourceKS.Set([]byte("doc2"), nil, []byte("beta"), txn)
	require.NoError(t, txn.Commit())
	require.NoError(t, ixr.Run())
	assert.Equal(t, int64(2), mi.RowCount())
}

func TestIndexerRemovesRowsForDeletedDocuments(t *testing.T) {
	source := openDataFile(t, "source.docstore")
	sourceKS, _ := source.KeyStore("default", store.Capabilities{Sequences: true, SoftDeletes: true})
	indexDF := openDataFile(t, "byTitle.docstore")
	indexKS, _ := indexDF.KeyStore("rows", store.Capabilities{Sequences: true})

	mi, err := Open(indexDF, indexKS, byTitleMap, "byTitle", 1, "")
	require.NoError(t, err)
	ixr := NewIndexer(source, sourceKS, []*MapReduceIndex{mi}, nil)

	txn, _ := source.BeginTransaction()
	sourceKS.Set([]byte("doc1"), nil, []byte("alpha"), txn)
	require.NoError(t, txn.Commit())
	require.NoError(t, ixr.Run())
	assert.Equal(t, int64(1), mi.RowCount())

	txn, _ = source.BeginTransaction()
	sourceKS.Delete([]byte("doc1"), txn)
	require.NoError(t, txn.Commit())
	require.NoError(t, ixr.Run())
	assert.Equal(t, int64(0), mi.RowCount())
}

func TestIndexerFiltersByDocumentType(t *testing.T) {
	source := openDataFile(t, "source.docstore")
	sourceKS, _ := source.KeyStore("default", store.Capabilities{Sequences: true, SoftDeletes: true})
	indexDF := openDataFile(t, "byTitle.docstore")
	indexKS, _ := indexDF.KeyStore("rows", store.Capabilities{Sequences: true})

	mi, err := Open(indexDF, indexKS, byTitleMap, "byTitle", 1, "book")
	require.NoError(t, err)
	docType := func(rec store.Record) string {
		if string(rec.Key) == "doc2" {
			return "movie"
		}
		return "book"
	}
	ixr := NewIndexer(source, sourceKS, []*MapReduceIndex{mi}, docType)

	txn, _ := source.BeginTransaction()
	sourceKS.Set([]byte("doc1"), nil, []byte("alpha"), txn)
	sourceKS.Set([]byte("doc2"), nil, []byte("beta"), txn)
	require.NoError(t, txn.Commit())
	require.NoError(t, ixr.Run())

	assert.Equal(t, int64(1), mi.RowCount())
	r, err := indexKS.Get(index.RowKey(collatable.String("beta"), "doc2", 0), false)
	require.NoError(t, err)
	assert.False(t, r.Exists)
}

func TestSetupInvalidatesOnMapVersionChange(t *testing.T) {
	source := openDataFile(t, "source.docstore")
	sourceKS, _ := source.KeyStore("default", store.Capabilities{Sequences: true, SoftDeletes: true})
	indexDF := openDataFile(t, "byTitle.docstore")
	indexKS, _ := indexDF.KeyStore("rows", store.Capabilities{Sequences: true})

	mi, err := Open(indexDF, indexKS, byTitleMap, "byTitle", 1, "")
	require.NoError(t, err)
	ixr := NewIndexer(source, sourceKS, []*MapReduceIndex{mi}, nil)

	txn, _ := source.BeginTransaction()
	sourceKS.Set([]byte("doc1"), nil, []byte("alpha"), txn)
	require.NoError(t, txn.Commit())
	require.NoError(t, ixr.Run())
	assert.Equal(t, int64(1), mi.RowCount())

	mi2, err := Open(indexDF, indexKS, byTitleMap, "byTitle", 2, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), mi2.LastSequenceIndexed())
}
