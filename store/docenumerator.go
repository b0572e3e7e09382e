package store

import (
	"bytes"

	"github.com/thistonyuncle/docstore/backend"
	"github.com/thistonyuncle/docstore/dberrors"
)

// DocEnumerator provides uniform ordered iteration over a key range, a
// sequence range, or an explicit key list, per spec.md §4.1. Iteration is
// eagerly buffered: ranges in this engine are bounded by what a single
// backend range scan returns, which keeps the cursor model simple and
// matches how KeyStore.Enumerate's few hundred to few thousand row ranges
// are used in practice by the index engine and RevisionStore.
type DocEnumerator struct {
	records []Record
	pos      int // index of the record Next() most recently selected, -1 before first call
}

func (e *DocEnumerator) Next() bool {
	if e.pos+1 >= len(e.records) {
		if e.pos < len(e.records) {
			e.pos = len(e.records)
		}
		return false
	}
	e.pos++
	return true
}

// Record returns the current record. Valid only after Next() returns true.
func (e *DocEnumerator) Record() Record {
	if e.pos < 0 || e.pos >= len(e.records) {
		return Record{}
	}
	return e.records[e.pos]
}

// Len reports the total number of records this enumerator will yield.
func (e *DocEnumerator) Len() int { return len(e.records) }

func newEnumerator(records []Record) *DocEnumerator {
	return &DocEnumerator{records: records, pos: -1}
}

func applySkipLimit(records []Record, opts EnumOptions) []Record {
	if opts.Skip > 0 {
		if opts.Skip >= len(records) {
			return nil
		}
		records = records[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < len(records) {
		records = records[:opts.Limit]
	}
	return records
}

// Enumerate iterates the key range [min,max], honoring inclusivity flags.
func (ks *KeyStore) Enumerate(min, max []byte, opts EnumOptions) (*DocEnumerator, error) {
	startKey := min
	endKey := max
	// backend.BatchTx/ReadTx ranges are half-open [start,end); adjust for
	// the spec's inclusive/exclusive flags.
	if len(endKey) > 0 && opts.InclusiveEnd {
		endKey = append(append([]byte(nil), endKey...), 0x00)
	}
	if len(startKey) > 0 && !opts.InclusiveStart {
		startKey = append(append([]byte(nil), startKey...), 0x00)
	}

	var keys, vals [][]byte
	err := ks.df.engine.View(func(tx backend.ReadTx) error {
		var err error
		keys, vals, err = tx.UnsafeRange(ks.name, nonEmpty(startKey), nonEmpty(endKey), 0, opts.Descending)
		return err
	})
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords(keys, vals, opts)
	if err != nil {
		return nil, err
	}
	return newEnumerator(applySkipLimit(records, opts)), nil
}

func nonEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

// EnumerateSequenceRange iterates [minSeq,maxSeq] inclusive; requires the
// Sequences capability.
func (ks *KeyStore) EnumerateSequenceRange(minSeq, maxSeq uint64, opts EnumOptions) (*DocEnumerator, error) {
	if !ks.caps.Sequences {
		return nil, dberrors.New(dberrors.NoSequences, "EnumerateSequenceRange: no sequences capability")
	}
	start := beBytes(minSeq)
	end := append(beBytes(maxSeq), 0x00) // inclusive maxSeq

	var seqKeys, docKeys [][]byte
	err := ks.df.engine.View(func(tx backend.ReadTx) error {
		var err error
		seqKeys, docKeys, err = tx.UnsafeRange(seqBucket(ks.name), start, end, 0, opts.Descending)
		return err
	})
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(docKeys))
	err = ks.df.engine.View(func(tx backend.ReadTx) error {
		for i, dk := range docKeys {
			v, found, err := tx.UnsafeGet(ks.name, dk)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			d, err := decodeRecordValue(v)
			if err != nil {
				return err
			}
			if d.deleted && !opts.IncludeDeleted {
				continue
			}
			_ = seqKeys[i]
			records = append(records, recordFromDecoded(dk, d, opts.MetaOnly))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newEnumerator(applySkipLimit(records, opts)), nil
}

// EnumerateKeys iterates an explicit, caller-ordered list of keys. Keys
// with no current record are simply absent from the result (not reported
// as an error), consistent with KeyStore.Get's NotFound-as-sentinel idiom.
func (ks *KeyStore) EnumerateKeys(keys [][]byte, opts EnumOptions) (*DocEnumerator, error) {
	ordered := make([][]byte, len(keys))
	copy(ordered, keys)
	if opts.Descending {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}
	records := make([]Record, 0, len(ordered))
	err := ks.df.engine.View(func(tx backend.ReadTx) error {
		for _, k := range ordered {
			v, found, err := tx.UnsafeGet(ks.name, k)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			d, err := decodeRecordValue(v)
			if err != nil {
				return err
			}
			if d.deleted && !opts.IncludeDeleted {
				continue
			}
			records = append(records, recordFromDecoded(k, d, opts.MetaOnly))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newEnumerator(applySkipLimit(records, opts)), nil
}

func decodeRecords(keys, vals [][]byte, opts EnumOptions) ([]Record, error) {
	records := make([]Record, 0, len(keys))
	for i, k := range keys {
		d, err := decodeRecordValue(vals[i])
		if err != nil {
			return nil, err
		}
		if d.deleted && !opts.IncludeDeleted {
			continue
		}
		records = append(records, recordFromDecoded(k, d, opts.MetaOnly))
	}
	return records, nil
}

// withinRange reports whether key lies in the inclusive range [min,max],
// treating a nil bound as open.
func withinRange(key, min, max []byte) bool {
	if min != nil && bytes.Compare(key, min) < 0 {
		return false
	}
	if max != nil && bytes.Compare(key, max) > 0 {
		return false
	}
	return true
}
