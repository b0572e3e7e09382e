package revstore

import (
	"github.com/thistonyuncle/docstore/dberrors"
	"github.com/thistonyuncle/docstore/doclog"
	"github.com/thistonyuncle/docstore/store"
	"github.com/thistonyuncle/docstore/vvec"
)

var rsLog = doclog.New("revstore")

// RevisionStore wraps two KeyStores per spec.md §4.6: current (keys =
// docID) and revs (non-current, composite keys).
type RevisionStore struct {
	current *store.KeyStore
	revs    *store.KeyStore
	localID string // substituted for vvec.AuthorSelf on export
}

// Open returns a RevisionStore backed by the "default" and "revs"
// KeyStores of df, creating them with the sequence/soft-delete
// capabilities RevisionStore needs.
func Open(df *store.DataFile, localID string) (*RevisionStore, error) {
	current, err := df.KeyStore("default", store.Capabilities{Sequences: true, SoftDeletes: true})
	if err != nil {
		return nil, err
	}
	revs, err := df.KeyStore("revs", store.Capabilities{Sequences: true, SoftDeletes: false})
	if err != nil {
		return nil, err
	}
	return &RevisionStore{current: current, revs: revs, localID: localID}, nil
}

func recordToRevision(docID string, r store.Record) (Revision, error) {
	flags, vv, cas, docType, err := decodeMeta(r.Meta)
	if err != nil {
		return Revision{}, err
	}
	return Revision{
		DocID:    docID,
		Vector:   vv,
		Flags:    flags,
		CAS:      cas,
		DocType:  docType,
		Body:     r.Body,
		Sequence: r.Sequence,
	}, nil
}

// Get returns docID's current revision, or ok=false if missing.
func (rs *RevisionStore) Get(docID string) (Revision, bool, error) {
	r, err := rs.current.Get([]byte(docID), false)
	if err != nil {
		return Revision{}, false, err
	}
	if !r.Exists || r.Deleted {
		return Revision{}, false, nil
	}
	rev, err := recordToRevision(docID, r)
	if err != nil {
		return Revision{}, false, err
	}
	return rev, true, nil
}

// GetRevision returns a specific revision of docID, searching current then
// non-current.
func (rs *RevisionStore) GetRevision(docID string, v vvec.Version) (Revision, bool, error) {
	cur, err := rs.current.Get([]byte(docID), false)
	if err != nil {
		return Revision{}, false, err
	}
	if cur.Exists {
		rev, err := recordToRevision(docID, cur)
		if err != nil {
			return Revision{}, false, err
		}
		if head, ok := rev.Vector.Current(); ok && head == v {
			return rev, true, nil
		}
	}
	r, err := rs.revs.Get(keyForNonCurrent(docID, v), false)
	if err != nil {
		return Revision{}, false, err
	}
	if !r.Exists {
		return Revision{}, false, nil
	}
	rev, err := recordToRevision(docID, r)
	if err != nil {
		return Revision{}, false, err
	}
	return rev, true, nil
}

func (rs *RevisionStore) writeCurrent(txn *store.Transaction, rev Revision) error {
	seq, err := rs.current.Set([]byte(rev.DocID), encodeMeta(rev), rev.Body, txn)
	if err != nil {
		return err
	}
	rev.Sequence = seq
	return nil
}

// Create implements spec.md §4.6: if parentVector doesn't match the
// current version, returns ok=false (conflict). Otherwise increments the
// local peer's generation and writes the new current revision.
func (rs *RevisionStore) Create(docID string, parentVector vvec.VersionVector, body []byte, docType string, txn *store.Transaction) (Revision, bool, error) {
	cur, exists, err := rs.Get(docID)
	if err != nil {
		return Revision{}, false, err
	}
	if exists {
		if cur.Vector.CompareTo(parentVector) != vvec.Same {
			return Revision{}, false, nil
		}
	} else if !parentVector.IsEmpty() {
		return Revision{}, false, nil
	}

	newVector := parentVector.IncrementGen(rs.localID)
	wasConflicted := exists && cur.IsConflicted()

	newRev := Revision{DocID: docID, Vector: newVector, Body: body, DocType: docType}
	if err := rs.writeCurrent(txn, newRev); err != nil {
		return Revision{}, false, err
	}

	if wasConflicted {
		if err := rs.deleteOlderNonCurrent(docID, newVector, txn); err != nil {
			return Revision{}, false, err
		}
	}
	return newRev, true, nil
}

// deleteOlderNonCurrent removes every non-current revision of docID whose
// vector the new current vector now dominates.
func (rs *RevisionStore) deleteOlderNonCurrent(docID string, newVector vvec.VersionVector, txn *store.Transaction) error {
	e, err := rs.revs.Enumerate(startKeyForDoc(docID), endKeyForDoc(docID), store.DefaultEnumOptions())
	if err != nil {
		return err
	}
	var toDelete [][]byte
	for e.Next() {
		r := e.Record()
		_, vv, _, _, err := decodeMeta(r.Meta)
		if err != nil {
			return err
		}
		if head, ok := vv.Current(); ok && newVector.CompareToSingle(head) == vvec.Newer {
			toDelete = append(toDelete, append([]byte(nil), r.Key...))
		}
	}
	for _, k := range toDelete {
		if _, err := rs.revs.Delete(k, txn); err != nil {
			return err
		}
	}
	return nil
}

// Insert implements spec.md §4.6's insert: compares the incoming
// revision's vector against the doc's current vector and applies the
// Same/Older/Newer/Conflicting disposition.
func (rs *RevisionStore) Insert(rev Revision, txn *store.Transaction) (vvec.CompareResult, error) {
	cur, exists, err := rs.Get(rev.DocID)
	if err != nil {
		return 0, err
	}
	if !exists {
		if err := rs.writeCurrent(txn, rev); err != nil {
			return 0, err
		}
		return vvec.Newer, nil
	}

	result := rev.Vector.CompareTo(cur.Vector)
	switch result {
	case vvec.Older, vvec.Same:
		return result, nil
	case vvec.Newer:
		if err := rs.writeCurrent(txn, rev); err != nil {
			return 0, err
		}
		return result, nil
	case vvec.Conflicting:
		head, ok := rev.Vector.Current()
		if !ok {
			return 0, dberrors.New(dberrors.BadVersionVector, "Insert: conflicting revision has empty vector")
		}
		if _, err := rs.revs.Set(keyForNonCurrent(rev.DocID, head), encodeMeta(rev), rev.Body, txn); err != nil {
			return 0, err
		}
		cur.Flags |= FlagConflicted
		if err := rs.writeCurrent(txn, cur); err != nil {
			return 0, err
		}
		return result, nil
	default:
		return result, nil
	}
}

// ResolveConflict merges every revision in revs (plus the current
// revision), writes the merged result as current, deletes the losing
// non-current revisions, and clears the conflicted flag.
func (rs *RevisionStore) ResolveConflict(docID string, revs []Revision, body []byte, docType string, txn *store.Transaction) (Revision, error) {
	cur, exists, err := rs.Get(docID)
	if err != nil {
		return Revision{}, err
	}
	merged := vvec.VersionVector{}
	if exists {
		merged = cur.Vector
	}
	for _, r := range revs {
		merged = merged.MergedWith(r.Vector)
	}
	merged = merged.IncrementGen(rs.localID)

	newRev := Revision{DocID: docID, Vector: merged, Body: body, DocType: docType}
	if err := rs.writeCurrent(txn, newRev); err != nil {
		return Revision{}, err
	}
	for _, r := range revs {
		head, ok := r.Vector.Current()
		if !ok {
			continue
		}
		if _, err := rs.revs.Delete(keyForNonCurrent(docID, head), txn); err != nil {
			return Revision{}, err
		}
	}
	return newRev, nil
}

// CheckRevision implements spec.md §4.6's fast existence check: Older if
// the doc already has a newer generation for v's author (v is stale),
// Newer if the doc lacks v (its generation for that author trails v's).
// This is the inverse of CompareToSingle's generic self-perspective
// convention, kept as its own small function rather than overloading
// CompareToSingle's meaning (see DESIGN.md).
func (rs *RevisionStore) CheckRevision(docID string, v vvec.Version) (vvec.CompareResult, error) {
	cur, exists, err := rs.Get(docID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return vvec.Newer, nil
	}
	switch cur.Vector.CompareToSingle(v) {
	case vvec.Older:
		return vvec.Newer, nil
	case vvec.Newer:
		return vvec.Older, nil
	default:
		return vvec.Same, nil
	}
}

// EnumerateRevisions iterates docID's non-current revisions, optionally
// restricted to one author.
func (rs *RevisionStore) EnumerateRevisions(docID string, author string) (*store.DocEnumerator, error) {
	var min, max []byte
	if author != "" {
		min, max = startKeyFor(docID, author), endKeyFor(docID, author)
	} else {
		min, max = startKeyForDoc(docID), endKeyForDoc(docID)
	}
	return rs.revs.Enumerate(min, max, store.DefaultEnumOptions())
}

// ConflictingRevisions returns every non-current revision stored for
// docID, the SPEC_FULL.md-promised helper supplementing spec.md §4.6 with
// the CBForest original's getAllRevisions-style conflict enumeration.
func (rs *RevisionStore) ConflictingRevisions(docID string) ([]Revision, error) {
	e, err := rs.EnumerateRevisions(docID, "")
	if err != nil {
		return nil, err
	}
	var out []Revision
	for e.Next() {
		r := e.Record()
		rev, err := recordToRevision(docIDFromKey(r.Key), r)
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, nil
}

func init() {
	rsLog.Debugf("revstore initialized")
}
