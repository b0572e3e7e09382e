package mapreduce

import (
	"github.com/thistonyuncle/docstore/index"
	"github.com/thistonyuncle/docstore/store"
)

// MapFunc emits (key, value) pairs for one source document. An empty
// return indicates the document does not belong in the index.
type MapFunc func(docID string, rec store.Record) []index.Emitted

// MapReduceIndex is an Index populated by a user-supplied map function run
// over a source KeyStore, per spec.md §4.9.
type MapReduceIndex struct {
	idx     *index.Index
	ks      *store.KeyStore
	df      *store.DataFile // owns ks, used to open invalidate()'s own transaction
	mapFunc MapFunc
	docType string // "" means no document-type filter
	state   indexState
}

// Open loads (or initializes) a MapReduceIndex over ks (a KeyStore of df),
// given the map function that will populate it and setup parameters.
func Open(df *store.DataFile, ks *store.KeyStore, mapFn MapFunc, indexType string, mapVersion int, docType string) (*MapReduceIndex, error) {
	mi := &MapReduceIndex{idx: index.Open(ks), ks: ks, df: df, mapFunc: mapFn, docType: docType}
	if err := mi.loadState(); err != nil {
		return nil, err
	}
	if err := mi.setup(indexType, mapVersion); err != nil {
		return nil, err
	}
	return mi, nil
}

func (mi *MapReduceIndex) loadState() error {
	r, err := mi.ks.Get(stateKey(), false)
	if err != nil {
		return err
	}
	if !r.Exists {
		mi.state = indexState{FormatVersion: currentFormatVersion}
		return nil
	}
	st, err := decodeState(r.Body)
	if err != nil {
		return err
	}
	if st.FormatVersion < minFormatVersion {
		st = indexState{FormatVersion: currentFormatVersion}
	}
	mi.state = st
	return nil
}

// setup compares the persisted indexType/mapVersion against the supplied
// values; a mismatch invalidates the index (erases rows, resets
// sequences), per spec.md §4.9.
func (mi *MapReduceIndex) setup(indexType string, mapVersion int) error {
	if mi.state.RowCount == 0 && mi.state.LastSeqIndexed == 0 && mi.state.IndexType == "" {
		mi.state.IndexType = indexType
		mi.state.MapVersion = mapVersion
		mi.state.FormatVersion = currentFormatVersion
		return nil
	}
	if mi.state.IndexType != indexType || mi.state.MapVersion != mapVersion {
		return mi.invalidate(indexType, mapVersion)
	}
	return nil
}

// invalidate erases every row and resets the state record, adopting the
// new indexType/mapVersion.
func (mi *MapReduceIndex) invalidate(indexType string, mapVersion int) error {
	txn, err := mi.df.BeginTransaction()
	if err != nil {
		return err
	}
	if err := mi.ks.Erase(txn); err != nil {
		txn.Abort()
		return err
	}
	mi.state = indexState{IndexType: indexType, MapVersion: mapVersion, FormatVersion: currentFormatVersion}
	if _, err := mi.ks.Set(stateKey(), nil, encodeState(mi.state), txn); err != nil {
		txn.Abort()
		return err
	}
	return txn.Commit()
}

// checkPurge compares the saved lastPurgeCount against source's current
// purgeCount(); on mismatch the index is invalidated (full rebuild
// follows) and the new count adopted, per spec.md §4.9.
func (mi *MapReduceIndex) checkPurge(source *store.DataFile) error {
	current := source.PurgeCount()
	if current == mi.state.LastPurgeCount {
		return nil
	}
	if err := mi.invalidate(mi.state.IndexType, mi.state.MapVersion); err != nil {
		return err
	}
	mi.state.LastPurgeCount = current
	return nil
}

// Index returns the underlying generic Index.
func (mi *MapReduceIndex) Index() *index.Index { return mi.idx }

// RowCount returns the index's current emitted-row count.
func (mi *MapReduceIndex) RowCount() int64 { return mi.state.RowCount }

// LastSequenceIndexed returns the highest source sequence this index has
// fully processed.
func (mi *MapReduceIndex) LastSequenceIndexed() uint64 { return mi.state.LastSeqIndexed }

// LastSequenceChangedAt returns the last source sequence that actually
// produced a row change in this index.
func (mi *MapReduceIndex) LastSequenceChangedAt() uint64 { return mi.state.LastSeqChangedAt }
