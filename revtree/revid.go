// Package revtree implements the tree-shaped revision history of spec.md
// §4.4: generation-numbered, hash-digested RevIDs with parent links, insert
// and insertHistory, pruning and purging.
package revtree

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/thistonyuncle/docstore/dberrors"
	"github.com/thistonyuncle/docstore/varint"
)

// maxGeneration bounds RevID.Generation, per spec.md §3 ("≤ ~4×10^8").
const maxGeneration = 400_000_000

// RevID is a compact revision identifier in one of two shapes: digest form
// (`<gen>-<hex digest>`) used by RevTree, or clock form (`<gen>@<author>`)
// used by VersionVector-backed revisions. Only the digest form is produced
// by this package; the clock form is parsed here too since both appear in
// RevTree history lists interchangeably in the original CBForest encoding.
type RevID struct {
	Generation uint64
	Digest     []byte // digest form
	Author     []byte // clock form; nil for digest form
}

// IsClockForm reports whether r was parsed/built in clock form.
func (r RevID) IsClockForm() bool { return r.Author != nil }

// String renders the human form: "<gen>-<hex>" or "<gen>@<author>".
func (r RevID) String() string {
	if r.IsClockForm() {
		return strconv.FormatUint(r.Generation, 10) + "@" + string(r.Author)
	}
	return strconv.FormatUint(r.Generation, 10) + "-" + hex.EncodeToString(r.Digest)
}

// ParseRevID parses either shape of the human form.
func ParseRevID(s string) (RevID, error) {
	if i := strings.IndexByte(s, '-'); i > 0 {
		gen, err := strconv.ParseUint(s[:i], 10, 64)
		if err != nil || gen == 0 || gen > maxGeneration {
			return RevID{}, dberrors.New(dberrors.BadRevisionID, "invalid generation in revID: "+s)
		}
		digest, err := hex.DecodeString(s[i+1:])
		if err != nil || len(digest) == 0 {
			return RevID{}, dberrors.New(dberrors.BadRevisionID, "invalid digest in revID: "+s)
		}
		return RevID{Generation: gen, Digest: digest}, nil
	}
	if i := strings.IndexByte(s, '@'); i > 0 {
		gen, err := strconv.ParseUint(s[:i], 10, 64)
		if err != nil || gen == 0 || gen > maxGeneration {
			return RevID{}, dberrors.New(dberrors.BadRevisionID, "invalid generation in revID: "+s)
		}
		author := s[i+1:]
		if len(author) == 0 {
			return RevID{}, dberrors.New(dberrors.BadRevisionID, "empty author in revID: "+s)
		}
		return RevID{Generation: gen, Author: []byte(author)}, nil
	}
	return RevID{}, dberrors.New(dberrors.BadRevisionID, "unrecognized revID: "+s)
}

// Encode produces the compact binary form: digest form is
// `<generation:uvarint><digest bytes>`; clock form is
// `0x00<generation:uvarint><author bytes>`.
func (r RevID) Encode() []byte {
	if r.IsClockForm() {
		out := []byte{0x00}
		out = varint.PutUvarint(out, r.Generation)
		return append(out, r.Author...)
	}
	out := varint.PutUvarint(nil, r.Generation)
	return append(out, r.Digest...)
}

// DecodeRevID reverses Encode.
func DecodeRevID(b []byte) (RevID, error) {
	if len(b) > 0 && b[0] == 0x00 {
		gen, n := varint.Uvarint(b[1:])
		if n <= 0 {
			return RevID{}, dberrors.New(dberrors.BadRevisionID, "truncated clock-form revID")
		}
		author := b[1+n:]
		if len(author) == 0 {
			return RevID{}, dberrors.New(dberrors.BadRevisionID, "empty author in clock-form revID")
		}
		return RevID{Generation: gen, Author: append([]byte(nil), author...)}, nil
	}
	gen, n := varint.Uvarint(b)
	if n <= 0 {
		return RevID{}, dberrors.New(dberrors.BadRevisionID, "truncated revID")
	}
	digest := b[n:]
	if len(digest) == 0 {
		return RevID{}, dberrors.New(dberrors.BadRevisionID, "empty digest in revID")
	}
	return RevID{Generation: gen, Digest: append([]byte(nil), digest...)}, nil
}

// Compare orders two RevIDs: generation first (higher wins), then digest
// bytes (higher wins), matching spec.md §4.4's "ties broken by revID
// descending" sibling-sort rule. Returns >0 if r sorts before other (i.e.
// r is the "higher" revID), 0 if equal, <0 otherwise.
func (r RevID) Compare(other RevID) int {
	if r.Generation != other.Generation {
		if r.Generation > other.Generation {
			return 1
		}
		return -1
	}
	a, b := r.Digest, other.Digest
	if r.IsClockForm() {
		a = r.Author
	}
	if other.IsClockForm() {
		b = other.Author
	}
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] > b[i] {
				return 1
			}
			return -1
		}
	}
	switch {
	case len(a) > len(b):
		return 1
	case len(a) < len(b):
		return -1
	default:
		return 0
	}
}

// Equal reports whether r and other denote the same revision.
func (r RevID) Equal(other RevID) bool {
	return r.Compare(other) == 0 && r.IsClockForm() == other.IsClockForm()
}
