// Package revstore implements the version-vector revision store of
// spec.md §4.6/§4.7: a RevisionStore wrapping two KeyStores (current and
// non-current revisions) plus a CAS-server bridge for interoperating with
// a remote system that tags documents with an opaque monotonic integer.
package revstore

import (
	"bytes"

	"github.com/thistonyuncle/docstore/dberrors"
	"github.com/thistonyuncle/docstore/varint"
	"github.com/thistonyuncle/docstore/vvec"
)

// Flags are the per-revision bits of spec.md §3 ("Revision (vector form)").
type Flags uint8

const (
	FlagDeleted Flags = 1 << iota
	FlagConflicted
	FlagHasAttachments
)

// Revision is a Record interpreted as a version-vector revision: its key
// is either docID (current) or the composite non-current key built by
// keyForNonCurrent; its metadata decodes to [flags, versionVector, cas,
// docType].
type Revision struct {
	DocID    string
	Vector   vvec.VersionVector
	Flags    Flags
	CAS      uint64
	DocType  string
	Body     []byte
	Sequence uint64
}

func (r Revision) IsDeleted() bool      { return r.Flags&FlagDeleted != 0 }
func (r Revision) IsConflicted() bool   { return r.Flags&FlagConflicted != 0 }
func (r Revision) HasAttachments() bool { return r.Flags&FlagHasAttachments != 0 }

// encodeMeta packs [flags, versionVector, cas, docType] into the record's
// metadata blob. This is a plain length-prefixed structure rather than a
// reuse of the collatable codec: collatable's string encoding is
// zero-terminated and reorders bytes through the priority table, which is
// wrong for an opaque binary payload like an encoded VersionVector (see
// DESIGN.md).
func encodeMeta(r Revision) []byte {
	out := []byte{byte(r.Flags)}
	vvBytes := r.Vector.EncodeBinary()
	out = varint.PutUvarint(out, uint64(len(vvBytes)))
	out = append(out, vvBytes...)
	out = varint.PutUvarint(out, r.CAS)
	out = varint.PutUvarint(out, uint64(len(r.DocType)))
	out = append(out, r.DocType...)
	return out
}

func decodeMeta(meta []byte) (Flags, vvec.VersionVector, uint64, string, error) {
	corrupt := func() (Flags, vvec.VersionVector, uint64, string, error) {
		return 0, vvec.VersionVector{}, 0, "", dberrors.New(dberrors.CorruptRevisionData, "revstore: malformed revision metadata")
	}
	if len(meta) < 1 {
		return corrupt()
	}
	flags := Flags(meta[0])
	meta = meta[1:]

	vvLen, n := varint.Uvarint(meta)
	if n <= 0 || uint64(len(meta)-n) < vvLen {
		return corrupt()
	}
	meta = meta[n:]
	vvBytes := meta[:vvLen]
	meta = meta[vvLen:]
	vv, err := vvec.DecodeBinary(vvBytes)
	if err != nil {
		return 0, vvec.VersionVector{}, 0, "", err
	}

	cas, n := varint.Uvarint(meta)
	if n <= 0 {
		return corrupt()
	}
	meta = meta[n:]

	dtLen, n := varint.Uvarint(meta)
	if n <= 0 || uint64(len(meta)-n) < dtLen {
		return corrupt()
	}
	meta = meta[n:]
	docType := string(meta[:dtLen])

	return flags, vv, cas, docType, nil
}

// docIDFromKey returns key up to (not including) the first tab.
func docIDFromKey(key []byte) string {
	if i := bytes.IndexByte(key, '\t'); i >= 0 {
		return string(key[:i])
	}
	return string(key)
}

// startKeyFor / endKeyFor bound the non-current key range for one
// (docID, author) pair: "docID\tauthor," through "docID\tauthor-"
// exclusive, since ','+1 == '-' in ASCII.
func startKeyFor(docID, author string) []byte {
	return []byte(docID + "\t" + author + ",")
}

func endKeyFor(docID, author string) []byte {
	return []byte(docID + "\t" + author + "-")
}

// startKeyForDoc / endKeyForDoc bound every author's non-current entries
// for docID (used when no author filter is supplied).
func startKeyForDoc(docID string) []byte {
	return []byte(docID + "\t")
}

func endKeyForDoc(docID string) []byte {
	return []byte(docID + "\n") // tab+1, exclusive upper bound
}

// keyForNonCurrent builds the composite key for a non-current revision.
func keyForNonCurrent(docID string, v vvec.Version) []byte {
	out := []byte(docID + "\t" + v.Author + ",")
	return varint.PutUvarint(out, v.Generation)
}
