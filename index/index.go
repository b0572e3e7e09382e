package index

import (
	"bytes"
	"sync/atomic"

	"github.com/thistonyuncle/docstore/collatable"
	"github.com/thistonyuncle/docstore/dberrors"
	"github.com/thistonyuncle/docstore/doclog"
	"github.com/thistonyuncle/docstore/store"
	"github.com/thistonyuncle/docstore/varint"
)

var idxLog = doclog.New("index")

// specialValue marks a row whose value means "the value is the source
// document itself, force re-emission on every update" (spec.md §4.8).
var specialValue = []byte{0xfe, 'd', 'o', 'c', 's', 'e', 'l', 'f'}

// IsSpecialValue reports whether value is the reserved re-emission
// sentinel.
func IsSpecialValue(value []byte) bool { return bytes.Equal(value, specialValue) }

// SpecialValue returns the reserved sentinel value.
func SpecialValue() []byte { return append([]byte(nil), specialValue...) }

// Index is a handle on a KeyStore plus a live-user reference count, per
// spec.md §4.8.
type Index struct {
	ks    *store.KeyStore
	users int32
}

// Open returns an Index over ks.
func Open(ks *store.KeyStore) *Index {
	return &Index{ks: ks}
}

// KeyStore returns the underlying KeyStore.
func (idx *Index) KeyStore() *store.KeyStore { return idx.ks }

// Retain/Release implement spec.md §5's index user counter: an
// IndexWriter or IndexEnumerator increments on construction and decrements
// on destruction; the Index refuses to be destroyed while its count is
// nonzero.
func (idx *Index) Retain()  { atomic.AddInt32(&idx.users, 1) }
func (idx *Index) Release() { atomic.AddInt32(&idx.users, -1) }
func (idx *Index) Users() int32 { return atomic.LoadInt32(&idx.users) }

// Close reports an error (rather than panicking) if live users remain —
// "logs a warning in release, asserts in debug" per spec.md §4.9's
// concurrency note; here the Go idiom is a returned error the caller may
// choose to escalate.
func (idx *Index) Close() error {
	if idx.Users() != 0 {
		idxLog.Warningf("Index.Close called with %d live users", idx.Users())
		return dberrors.New(dberrors.AssertionFailure, "Index.Close: users still live")
	}
	return nil
}

// IndexWriter performs map-side row maintenance for one document, per
// spec.md §4.8.
type IndexWriter struct {
	idx *Index
}

// NewWriter opens a writer over idx, retaining a user slot.
func NewWriter(idx *Index) *IndexWriter {
	idx.Retain()
	return &IndexWriter{idx: idx}
}

// Close releases the writer's user slot.
func (w *IndexWriter) Close() { w.idx.Release() }

// Emitted is one (key, value) pair a map function produced for a document.
type Emitted struct {
	Key   collatable.Value
	Value []byte
}

// Update implements spec.md §4.8's IndexWriter.update: diffs the
// document's newly emitted rows against what it previously emitted,
// writing/removing only what changed. rowCount is adjusted in place by
// added-removed; Update returns whether anything changed.
func (w *IndexWriter) Update(docID string, sequence uint64, emitted []Emitted, txn *store.Transaction, rowCount *int64) (bool, error) {
	ks := w.idx.ks
	docKey := docKeyRecordKey(docID)

	prevRecord, err := ks.Get(docKey, false)
	if err != nil {
		return false, err
	}
	var prevHash uint32
	var prevKeys [][]byte
	if prevRecord.Exists {
		h, k, ok := decodeDocKeys(prevRecord.Body)
		if ok {
			prevHash, prevKeys = h, k
		}
	}

	forceDistinct := false
	for _, e := range emitted {
		if IsSpecialValue(e.Value) {
			forceDistinct = true
			break
		}
	}

	var newHash uint32
	for _, e := range emitted {
		newHash = djb2Fold(newHash, e.Value)
	}
	if forceDistinct && newHash == prevHash {
		newHash++ // ensure newHash != prevHash per spec.md §4.8
	}

	newKeys := make([][]byte, len(emitted))
	var added, removed int
	keysChanged := false
	// leftoverStart is the first prevKeys index considered stale: it
	// advances with each positionally-matched key and freezes at the
	// first mismatch, per spec.md §4.8 ("once the first mismatch occurs,
	// all subsequent old keys are considered removed").
	leftoverStart := 0

	for i, e := range emitted {
		realKey := RowKey(e.Key, docID, i)
		newKeys[i] = realKey

		if !keysChanged && i < len(prevKeys) && bytes.Equal(prevKeys[i], realKey) && newHash == prevHash {
			leftoverStart = i + 1
			existing, err := ks.Get(realKey, false)
			if err != nil {
				return false, err
			}
			if existing.Exists && bytes.Equal(existing.Body, e.Value) {
				continue // unchanged, no write
			}
			if _, err := ks.Set(realKey, varint.PutUvarint(nil, sequence), e.Value, txn); err != nil {
				return false, err
			}
			added++
			removed++
			continue
		}

		keysChanged = true
		if _, err := ks.Set(realKey, varint.PutUvarint(nil, sequence), e.Value, txn); err != nil {
			return false, err
		}
		added++
	}

	// A leftover key that was emitted again has already been overwritten
	// above: it counts as removed but its fresh row is kept.
	rewritten := make(map[string]bool, len(newKeys))
	for _, k := range newKeys {
		rewritten[string(k)] = true
	}
	for j := leftoverStart; j < len(prevKeys); j++ {
		removed++
		if rewritten[string(prevKeys[j])] {
			continue
		}
		if _, err := ks.Delete(prevKeys[j], txn); err != nil {
			return false, err
		}
	}
	if leftoverStart < len(prevKeys) {
		keysChanged = true
	}

	if keysChanged {
		if len(newKeys) == 0 {
			if prevRecord.Exists {
				if _, err := ks.Delete(docKey, txn); err != nil {
					return false, err
				}
			}
		} else {
			if _, err := ks.Set(docKey, nil, encodeDocKeys(newHash, newKeys), txn); err != nil {
				return false, err
			}
		}
	}

	if added == 0 && removed == 0 {
		return false, nil
	}
	if rowCount != nil {
		*rowCount += int64(added) - int64(removed)
	}
	return true, nil
}
