package vvec

import (
	"strings"

	"github.com/thistonyuncle/docstore/collatable"
	"github.com/thistonyuncle/docstore/dberrors"
)

// VersionVector is an ordered list of Versions, most recent first, per
// spec.md §4.5. The zero value is an empty vector.
type VersionVector struct {
	versions []Version
	// contentHash, when non-nil, is the optional merge content hash set by
	// WithContentHash. It is kept apart from versions: String, EncodeBinary
	// and MergedWith do not include it.
	contentHash []byte
}

// Parse reads the human form "gen@author,gen@author,...", current first.
func Parse(s string) (VersionVector, error) {
	if s == "" {
		return VersionVector{}, dberrors.New(dberrors.BadVersionVector, "empty version vector")
	}
	parts := strings.Split(s, ",")
	seen := map[string]bool{}
	versions := make([]Version, 0, len(parts))
	for _, p := range parts {
		v, err := parseVersion(p)
		if err != nil {
			return VersionVector{}, err
		}
		if seen[v.Author] {
			return VersionVector{}, dberrors.New(dberrors.BadVersionVector, "duplicate author: "+v.Author)
		}
		seen[v.Author] = true
		versions = append(versions, v)
	}
	return VersionVector{versions: versions}, nil
}

// String renders the human form.
func (vv VersionVector) String() string {
	parts := make([]string, len(vv.versions))
	for i, v := range vv.versions {
		parts[i] = v.String()
	}
	return strings.Join(parts, ",")
}

// Versions returns a copy of the underlying version list.
func (vv VersionVector) Versions() []Version {
	out := make([]Version, len(vv.versions))
	copy(out, vv.versions)
	return out
}

// IsEmpty reports whether the vector has no versions.
func (vv VersionVector) IsEmpty() bool { return len(vv.versions) == 0 }

// Current returns the vector's first (most recent) version.
func (vv VersionVector) Current() (Version, bool) {
	if len(vv.versions) == 0 {
		return Version{}, false
	}
	return vv.versions[0], true
}

func (vv VersionVector) genOf(author string) uint64 {
	for _, v := range vv.versions {
		if v.Author == author {
			return v.Generation
		}
	}
	return 0
}

// CompareResult is the outcome of CompareTo, per spec.md §4.5.
type CompareResult int

const (
	Same CompareResult = iota
	Older
	Newer
	Conflicting
)

func (r CompareResult) String() string {
	switch r {
	case Same:
		return "Same"
	case Older:
		return "Older"
	case Newer:
		return "Newer"
	case Conflicting:
		return "Conflicting"
	default:
		return "Unknown"
	}
}

// CompareTo compares vv against other across every author appearing in
// either vector.
func (vv VersionVector) CompareTo(other VersionVector) CompareResult {
	authors := map[string]bool{}
	for _, v := range vv.versions {
		authors[v.Author] = true
	}
	for _, v := range other.versions {
		authors[v.Author] = true
	}
	var older, newer bool
	for author := range authors {
		a, b := vv.genOf(author), other.genOf(author)
		if a < b {
			older = true
		}
		if a > b {
			newer = true
		}
	}
	return combine(older, newer)
}

// CompareToSingle compares vv against a single Version treated as a
// one-element vector, per spec.md §4.5: Older means vv's generation for
// v's author is below v's (vv lacks v); Newer means vv already holds a
// later generation for that author.
func (vv VersionVector) CompareToSingle(v Version) CompareResult {
	a := vv.genOf(v.Author)
	return combine(a < v.Generation, a > v.Generation)
}

func combine(older, newer bool) CompareResult {
	switch {
	case older && newer:
		return Conflicting
	case older:
		return Older
	case newer:
		return Newer
	default:
		return Same
	}
}

// IncrementGen moves author to position 0 with generation+1 (or creates it
// at generation 1), per spec.md §4.5.
func (vv VersionVector) IncrementGen(author string) VersionVector {
	newGen := vv.genOf(author) + 1
	out := make([]Version, 0, len(vv.versions)+1)
	out = append(out, Version{Generation: newGen, Author: author})
	for _, v := range vv.versions {
		if v.Author != author {
			out = append(out, v)
		}
	}
	return VersionVector{versions: out}
}

// MergedWith returns a new vector holding, for each author present in
// either vv or b, the maximum generation; inputs are interleaved
// preserving relative order but the result is not canonical, per spec.md
// §4.5.
func (vv VersionVector) MergedWith(b VersionVector) VersionVector {
	maxGen := map[string]uint64{}
	var order []string
	addAll := func(list []Version) {
		for _, v := range list {
			if _, ok := maxGen[v.Author]; !ok {
				order = append(order, v.Author)
			}
			if v.Generation > maxGen[v.Author] {
				maxGen[v.Author] = v.Generation
			}
		}
	}
	addAll(vv.versions)
	addAll(b.versions)

	merged := make([]Version, len(order))
	for i, author := range order {
		merged[i] = Version{Generation: maxGen[author], Author: author}
	}
	return VersionVector{versions: merged}
}

// WithContentHash returns a copy of vv carrying hash as the merge content
// hash. The hash is held in memory only; it is not written as a leading
// element by String or EncodeBinary.
func (vv VersionVector) WithContentHash(hash []byte) VersionVector {
	out := vv
	out.contentHash = append([]byte(nil), hash...)
	return out
}

// ContentHash returns the optional merge content hash, if present.
func (vv VersionVector) ContentHash() ([]byte, bool) {
	if vv.contentHash == nil {
		return nil, false
	}
	return vv.contentHash, true
}

// SubstitutePeerID returns a copy of vv with every occurrence of
// AuthorSelf replaced by realID — the export-time half of spec.md §4.5's
// peer-ID substitution.
func (vv VersionVector) SubstitutePeerID(realID string) VersionVector {
	out := make([]Version, len(vv.versions))
	for i, v := range vv.versions {
		if v.Author == AuthorSelf {
			v.Author = realID
		}
		out[i] = v
	}
	return VersionVector{versions: out, contentHash: vv.contentHash}
}

// RestorePeerID reverses SubstitutePeerID: every occurrence of localID is
// replaced back with AuthorSelf.
func (vv VersionVector) RestorePeerID(localID string) VersionVector {
	out := make([]Version, len(vv.versions))
	for i, v := range vv.versions {
		if v.Author == localID {
			v.Author = AuthorSelf
		}
		out[i] = v
	}
	return VersionVector{versions: out, contentHash: vv.contentHash}
}

// EncodeBinary serializes vv as a Fleece-style array alternating author
// string and generation integer, per spec.md §4.5 and §6. It is built on
// the collatable encoder (package collatable) rather than a bespoke Fleece
// implementation: both are self-delimiting typed binary arrays, and
// reusing collatable avoids a second tag alphabet for the same job (see
// DESIGN.md).
func (vv VersionVector) EncodeBinary() []byte {
	elems := make([]collatable.Value, 0, len(vv.versions)*2)
	for _, v := range vv.versions {
		elems = append(elems, collatable.String(v.Author), collatable.Int(int64(v.Generation)))
	}
	return collatable.Encode(collatable.Array(elems...))
}

// DecodeBinary reverses EncodeBinary.
func DecodeBinary(data []byte) (VersionVector, error) {
	r := collatable.NewReader(data)
	if err := r.BeginArray(); err != nil {
		return VersionVector{}, err
	}
	var versions []Version
	for !r.AtSequenceEnd() {
		author, err := r.ReadString()
		if err != nil {
			return VersionVector{}, err
		}
		gen, err := r.ReadInt()
		if err != nil {
			return VersionVector{}, err
		}
		if gen < 0 {
			return VersionVector{}, dberrors.New(dberrors.BadVersionVector, "negative generation in binary version vector")
		}
		versions = append(versions, Version{Generation: uint64(gen), Author: author})
	}
	if err := r.EndArray(); err != nil {
		return VersionVector{}, err
	}
	return VersionVector{versions: versions}, nil
}
