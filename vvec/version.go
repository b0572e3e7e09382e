// Package vvec implements the version-vector revision model of spec.md
// §4.5: per-peer logical clocks with conflict detection, merge, and
// Fleece-style binary serialization.
package vvec

import (
	"strconv"
	"strings"

	"github.com/thistonyuncle/docstore/dberrors"
)

// Reserved author identifiers, per spec.md §3.
const (
	AuthorSelf   = "*" // the local peer, substituted on export
	AuthorServer = "$" // the CAS server
)

const maxGeneration = 400_000_000
const maxAuthorLength = 64

// Version is one {generation, author} pair.
type Version struct {
	Generation uint64
	Author     string
}

func (v Version) String() string {
	return strconv.FormatUint(v.Generation, 10) + "@" + v.Author
}

func parseVersion(s string) (Version, error) {
	i := strings.IndexByte(s, '@')
	if i <= 0 {
		return Version{}, dberrors.New(dberrors.BadVersionVector, "malformed version: "+s)
	}
	gen, err := strconv.ParseUint(s[:i], 10, 64)
	if err != nil || gen == 0 || gen > maxGeneration {
		return Version{}, dberrors.New(dberrors.BadVersionVector, "invalid generation in version: "+s)
	}
	author := s[i+1:]
	if len(author) == 0 || len(author) > maxAuthorLength {
		return Version{}, dberrors.New(dberrors.BadVersionVector, "invalid author in version: "+s)
	}
	return Version{Generation: gen, Author: author}, nil
}
