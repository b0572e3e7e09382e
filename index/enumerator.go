package index

import (
	"github.com/thistonyuncle/docstore/store"
	"github.com/thistonyuncle/docstore/varint"
)

// KeyRange is one inclusive (or half-open, if InclusiveEnd is false) bound
// pair over emitted keys, per spec.md §4.8.
type KeyRange struct {
	Min, Max     []byte
	InclusiveEnd bool
}

// ApproveFunc is the "approve(key)" filter hook of spec.md §4.8; nil means
// approve everything.
type ApproveFunc func(key []byte) bool

// Row is one surviving index row.
type Row struct {
	Key      []byte
	Sequence uint64
	Value    []byte
}

// IndexEnumerator iterates one or more KeyRanges over an Index's KeyStore,
// applying an optional approve hook before skip/limit, per spec.md §4.8.
type IndexEnumerator struct {
	idx     *Index
	ranges  []KeyRange
	opts    store.EnumOptions
	approve ApproveFunc

	rangeIdx int
	cur      *store.DocEnumerator
	current  Row
	skipped  int
	yielded  int
}

// NewEnumerator opens an IndexEnumerator over ranges, retaining a user
// slot on idx for the enumerator's lifetime.
func NewEnumerator(idx *Index, ranges []KeyRange, opts store.EnumOptions, approve ApproveFunc) *IndexEnumerator {
	idx.Retain()
	return &IndexEnumerator{idx: idx, ranges: ranges, opts: opts, approve: approve}
}

// Close releases the enumerator's user slot on its Index.
func (e *IndexEnumerator) Close() { e.idx.Release() }

func rangeEnumOptions(opts store.EnumOptions, r KeyRange) store.EnumOptions {
	sub := opts
	sub.InclusiveStart = true
	sub.InclusiveEnd = r.InclusiveEnd
	sub.Skip = 0
	sub.Limit = 0
	return sub
}

// Next advances to the next approved row, honoring skip/limit (applied
// after approve filtering) and visiting ranges in order, recreating the
// underlying DocEnumerator positioned at the next range's start once one
// exhausts.
func (e *IndexEnumerator) Next() (bool, error) {
	if e.opts.Limit > 0 && e.yielded >= e.opts.Limit {
		return false, nil
	}
	for {
		if e.cur == nil {
			if e.rangeIdx >= len(e.ranges) {
				return false, nil
			}
			r := e.ranges[e.rangeIdx]
			en, err := e.idx.ks.Enumerate(r.Min, r.Max, rangeEnumOptions(e.opts, r))
			if err != nil {
				return false, err
			}
			e.cur = en
		}
		if !e.cur.Next() {
			e.cur = nil
			e.rangeIdx++
			continue
		}
		rec := e.cur.Record()
		if e.approve != nil && !e.approve(rec.Key) {
			continue
		}
		if e.skipped < e.opts.Skip {
			e.skipped++
			continue
		}
		if e.opts.Limit > 0 && e.yielded >= e.opts.Limit {
			return false, nil
		}
		e.yielded++
		e.current = Row{Key: append([]byte(nil), rec.Key...), Sequence: sequenceFromMeta(rec.Meta), Value: append([]byte(nil), rec.Body...)}
		return true, nil
	}
}

// Row returns the enumerator's current row. Valid only after Next()
// returns (true, nil).
func (e *IndexEnumerator) Row() Row { return e.current }

func sequenceFromMeta(meta []byte) uint64 {
	v, n := varint.Uvarint(meta)
	if n <= 0 {
		return 0
	}
	return v
}
