package mapreduce

import (
	"github.com/thistonyuncle/docstore/doclog"
	"github.com/thistonyuncle/docstore/index"
	"github.com/thistonyuncle/docstore/store"
)

var mrLog = doclog.New("mapreduce")

// DocTypeFunc extracts a document-type label from a source record, used to
// match against a MapReduceIndex's declared filter. With a nil DocTypeFunc,
// an index without a filter sees every document and an index with a
// filter sees none.
type DocTypeFunc func(rec store.Record) string

// Indexer coordinates one or more MapReduceIndexes over a common source
// KeyStore, one Transaction per index, per spec.md §4.9. Since a
// DataFile allows only one open Transaction at a time (spec.md §5), the
// indexes passed to one Indexer must live in distinct DataFiles from one
// another, or Run will deadlock opening the second index's Transaction.
type Indexer struct {
	sourceDF *store.DataFile
	source   *store.KeyStore
	indexes  []*MapReduceIndex
	docType  DocTypeFunc
}

// NewIndexer builds an Indexer over source (a KeyStore of sourceDF),
// driving mapFunc invocation for each of indexes.
func NewIndexer(sourceDF *store.DataFile, source *store.KeyStore, indexes []*MapReduceIndex, docType DocTypeFunc) *Indexer {
	return &Indexer{sourceDF: sourceDF, source: source, indexes: indexes, docType: docType}
}

// noWorkSequence is returned by startingSequence when every index is
// already current.
const noWorkSequence = ^uint64(0)

// startingSequence returns the min over indexes of lastSeqIndexed+1,
// capped at sourceStore.lastSequence()+1, or (noWorkSequence, false) if
// every index is current, per spec.md §4.9.
func (ix *Indexer) startingSequence() (uint64, bool) {
	if len(ix.indexes) == 0 {
		return noWorkSequence, false
	}
	last := ix.source.LastSequence()
	start := last + 1
	for _, mi := range ix.indexes {
		s := mi.state.LastSeqIndexed + 1
		if s < start {
			start = s
		}
	}
	if start > last {
		return noWorkSequence, false
	}
	return start, true
}

type runState struct {
	mi      *MapReduceIndex
	txn     *store.Transaction
	writer  *index.IndexWriter
	rowCount int64
	lastSeqIndexed   uint64
	lastSeqChangedAt uint64
}

// Run performs one incremental indexing pass: for every new source
// sequence, invokes each qualifying index's map function and writes the
// diffed rows, then commits each index's state under its own Transaction.
// A failure while reading the source or writing rows aborts every index's
// Transaction. A failed Commit does not stop the remaining indexes from
// committing; the first commit error is returned.
func (ix *Indexer) Run() error {
	for _, mi := range ix.indexes {
		if err := mi.checkPurge(ix.sourceDF); err != nil {
			return err
		}
	}

	start, ok := ix.startingSequence()
	if !ok {
		return nil
	}
	last := ix.source.LastSequence()

	states := make([]*runState, len(ix.indexes))
	for i, mi := range ix.indexes {
		txn, err := mi.df.BeginTransaction()
		if err != nil {
			for j := 0; j < i; j++ {
				states[j].txn.Abort()
			}
			return err
		}
		states[i] = &runState{
			mi:               mi,
			txn:              txn,
			writer:           index.NewWriter(mi.idx),
			rowCount:         mi.state.RowCount,
			lastSeqIndexed:   mi.state.LastSeqIndexed,
			lastSeqChangedAt: mi.state.LastSeqChangedAt,
		}
	}
	abortAll := func() {
		for _, st := range states {
			st.writer.Close()
			st.txn.Abort()
		}
	}

	en, err := ix.source.EnumerateSequenceRange(start, last, store.EnumOptions{
		InclusiveStart: true,
		InclusiveEnd:   true,
		IncludeDeleted: true,
	})
	if err != nil {
		abortAll()
		return err
	}

	for en.Next() {
		rec := en.Record()
		docID := string(rec.Key)
		for _, st := range states {
			if rec.Sequence <= st.lastSeqIndexed {
				continue
			}
			if rec.Deleted {
				changed, err := st.writer.Update(docID, rec.Sequence, nil, st.txn, &st.rowCount)
				if err != nil {
					abortAll()
					return err
				}
				if changed {
					st.lastSeqChangedAt = rec.Sequence
				}
				st.lastSeqIndexed = rec.Sequence
				continue
			}
			if !ix.matchesType(st.mi, rec) {
				st.lastSeqIndexed = rec.Sequence // seen but skipped
				continue
			}
			emitted := st.mi.mapFunc(docID, rec)
			changed, err := st.writer.Update(docID, rec.Sequence, emitted, st.txn, &st.rowCount)
			if err != nil {
				abortAll()
				return err
			}
			if changed {
				st.lastSeqChangedAt = rec.Sequence
			}
			st.lastSeqIndexed = rec.Sequence
		}
	}

	for _, st := range states {
		st.mi.state.LastSeqIndexed = st.lastSeqIndexed
		st.mi.state.LastSeqChangedAt = st.lastSeqChangedAt
		st.mi.state.RowCount = st.rowCount
		st.mi.state.LastPurgeCount = st.mi.df.PurgeCount()
		if _, err := st.mi.ks.Set(stateKey(), nil, encodeState(st.mi.state), st.txn); err != nil {
			abortAll()
			return err
		}
	}
	var commitErr error
	for _, st := range states {
		st.writer.Close()
		if err := st.txn.Commit(); err != nil {
			mrLog.Errorf("commit failed for index: %v", err)
			if commitErr == nil {
				commitErr = err
			}
		}
	}
	return commitErr
}

func (ix *Indexer) matchesType(mi *MapReduceIndex, rec store.Record) bool {
	if mi.docType == "" {
		return true
	}
	if ix.docType == nil {
		return false
	}
	return ix.docType(rec) == mi.docType
}
