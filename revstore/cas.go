package revstore

import (
	"github.com/thistonyuncle/docstore/store"
	"github.com/thistonyuncle/docstore/varint"
	"github.com/thistonyuncle/docstore/vvec"
)

// ServerState is the per-docID side record of spec.md §4.7, tracking what
// the remote CAS server last saw.
type ServerState struct {
	BaseRevID     vvec.Version
	BaseCAS       uint64
	LatestRevID   vvec.Version
	LatestCAS     uint64
}

func encodeServerState(s ServerState) []byte {
	var out []byte
	out = varint.PutUvarint(out, s.BaseRevID.Generation)
	out = varint.PutUvarint(out, uint64(len(s.BaseRevID.Author)))
	out = append(out, s.BaseRevID.Author...)
	out = varint.PutUvarint(out, s.BaseCAS)
	out = varint.PutUvarint(out, s.LatestRevID.Generation)
	out = varint.PutUvarint(out, uint64(len(s.LatestRevID.Author)))
	out = append(out, s.LatestRevID.Author...)
	out = varint.PutUvarint(out, s.LatestCAS)
	return out
}

func decodeServerState(b []byte) (ServerState, bool) {
	readVersion := func() (vvec.Version, bool) {
		gen, n := varint.Uvarint(b)
		if n <= 0 {
			return vvec.Version{}, false
		}
		b = b[n:]
		authLen, n := varint.Uvarint(b)
		if n <= 0 || uint64(len(b)-n) < authLen {
			return vvec.Version{}, false
		}
		b = b[n:]
		author := string(b[:authLen])
		b = b[authLen:]
		return vvec.Version{Generation: gen, Author: author}, true
	}
	readU64 := func() (uint64, bool) {
		v, n := varint.Uvarint(b)
		if n <= 0 {
			return 0, false
		}
		b = b[n:]
		return v, true
	}

	var s ServerState
	var ok bool
	if s.BaseRevID, ok = readVersion(); !ok {
		return ServerState{}, false
	}
	if s.BaseCAS, ok = readU64(); !ok {
		return ServerState{}, false
	}
	if s.LatestRevID, ok = readVersion(); !ok {
		return ServerState{}, false
	}
	if s.LatestCAS, ok = readU64(); !ok {
		return ServerState{}, false
	}
	return s, true
}

// CASBridge specializes RevisionStore with the server-tagging protocol of
// spec.md §4.7, layered over a dedicated "cas" KeyStore.
type CASBridge struct {
	*RevisionStore
	cas *store.KeyStore
}

// OpenCASBridge opens (creating if necessary) the "cas" side-record
// KeyStore alongside rs's existing stores.
func OpenCASBridge(df *store.DataFile, localID string) (*CASBridge, error) {
	rs, err := Open(df, localID)
	if err != nil {
		return nil, err
	}
	casStore, err := df.KeyStore("cas", store.Capabilities{})
	if err != nil {
		return nil, err
	}
	return &CASBridge{RevisionStore: rs, cas: casStore}, nil
}

func (b *CASBridge) stateFor(docID string) (ServerState, bool, error) {
	r, err := b.cas.Get([]byte(docID), false)
	if err != nil {
		return ServerState{}, false, err
	}
	if !r.Exists {
		return ServerState{}, false, nil
	}
	s, ok := decodeServerState(r.Body)
	return s, ok, nil
}

func (b *CASBridge) putState(docID string, s ServerState, txn *store.Transaction) error {
	_, err := b.cas.Set([]byte(docID), nil, encodeServerState(s), txn)
	return err
}

// InsertFromServer implements spec.md §4.7's insertFromServer.
func (b *CASBridge) InsertFromServer(docID string, cas uint64, body []byte, docType string, txn *store.Transaction) error {
	state, hasState, err := b.stateFor(docID)
	if err != nil {
		return err
	}
	if hasState && cas <= state.LatestCAS {
		return nil
	}

	cur, exists, err := b.Get(docID)
	if err != nil {
		return err
	}
	curHead, _ := cur.Vector.Current()

	notDiverged := !exists || (hasState && curHead == state.LatestRevID)
	newVersion := vvec.Version{Generation: state.LatestRevID.Generation + 1, Author: vvec.AuthorServer}

	if notDiverged {
		rev := Revision{DocID: docID, Body: body, DocType: docType}
		rev.Vector, _ = vvec.Parse(newVersion.String())
		if err := b.writeCurrent(txn, rev); err != nil {
			return err
		}
		return b.putState(docID, ServerState{
			BaseRevID: newVersion, BaseCAS: cas,
			LatestRevID: newVersion, LatestCAS: cas,
		}, txn)
	}

	// Local has diverged: write as non-current to create a visible conflict.
	rev := Revision{DocID: docID, Body: body, DocType: docType}
	rev.Vector, _ = vvec.Parse(newVersion.String())
	if _, err := b.revs.Set(keyForNonCurrent(docID, newVersion), encodeMeta(rev), body, txn); err != nil {
		return err
	}
	cur.Flags |= FlagConflicted
	if err := b.writeCurrent(txn, cur); err != nil {
		return err
	}

	if hasState && state.LatestRevID != state.BaseRevID {
		if _, err := b.revs.Delete(keyForNonCurrent(docID, state.LatestRevID), txn); err != nil {
			return err
		}
	}
	state.LatestRevID, state.LatestCAS = newVersion, cas
	return b.putState(docID, state, txn)
}

// AssignCAS implements spec.md §4.7's "Assigning CAS": after the local
// peer pushes a revision and the server accepts it with a new cas, the
// saved base/latest revisions are deleted and replaced by the new pair.
func (b *CASBridge) AssignCAS(docID string, revID vvec.Version, cas uint64, txn *store.Transaction) error {
	state, hasState, err := b.stateFor(docID)
	if err != nil {
		return err
	}
	if hasState {
		if state.BaseRevID != state.LatestRevID {
			if _, err := b.revs.Delete(keyForNonCurrent(docID, state.LatestRevID), txn); err != nil {
				return err
			}
		}
	}
	return b.putState(docID, ServerState{BaseRevID: revID, BaseCAS: cas, LatestRevID: revID, LatestCAS: cas}, txn)
}

// ResolveConflictPreservingServer specializes RevisionStore.ResolveConflict
// per spec.md §4.7: the current latest-server revision is preserved as an
// ancestor rather than deleted, and base is updated to latest afterward.
func (b *CASBridge) ResolveConflictPreservingServer(docID string, revs []Revision, body []byte, docType string, txn *store.Transaction) (Revision, error) {
	state, hasState, err := b.stateFor(docID)
	if err != nil {
		return Revision{}, err
	}

	var keep []Revision
	if hasState {
		for _, r := range revs {
			if head, ok := r.Vector.Current(); ok && head == state.LatestRevID {
				keep = append(keep, r)
				continue
			}
		}
	}
	toDelete := make([]Revision, 0, len(revs))
	keepSet := map[vvec.Version]bool{}
	for _, r := range keep {
		if head, ok := r.Vector.Current(); ok {
			keepSet[head] = true
		}
	}
	for _, r := range revs {
		if head, ok := r.Vector.Current(); ok && keepSet[head] {
			continue
		}
		toDelete = append(toDelete, r)
	}

	merged, err := b.ResolveConflict(docID, toDelete, body, docType, txn)
	if err != nil {
		return Revision{}, err
	}

	if hasState {
		state.BaseRevID, state.BaseCAS = state.LatestRevID, state.LatestCAS
		if err := b.putState(docID, state, txn); err != nil {
			return Revision{}, err
		}
	}
	return merged, nil
}
