// Package index implements the generic emitted-row index engine of
// spec.md §4.8: a handle on a KeyStore plus a reference count of live
// users, with a row key format and IndexWriter.update algorithm shared by
// the map/reduce, full-text and geospatial specializations.
package index

import (
	"github.com/thistonyuncle/docstore/collatable"
	"github.com/thistonyuncle/docstore/varint"
)

// RowKey builds the storage key for one emitted row: collatable-encoded
// [emittedKey, collatable(sourceID)] followed by emitIndex if it is
// nonzero, per spec.md §4.8.
func RowKey(emittedKey collatable.Value, sourceID string, emitIndex int) []byte {
	sourceKeyBytes := collatable.Encode(collatable.String(sourceID))
	elems := []collatable.Value{emittedKey, collatable.Raw(sourceKeyBytes)}
	if emitIndex > 0 {
		elems = append(elems, collatable.Int(int64(emitIndex)))
	}
	return collatable.Encode(collatable.Array(elems...))
}

// KeyRangeForExactKey returns the [min,max] byte bounds bracketing every
// RowKey whose emitted key equals emittedKey exactly, regardless of source
// document or emit index. Used by the full-text and geo query enumerators
// to scan one term or hash's rows.
func KeyRangeForExactKey(emittedKey collatable.Value) (min, max []byte) {
	full := collatable.Encode(collatable.Array(emittedKey))
	prefix := full[:len(full)-1] // drop the trailing end-of-array marker
	min = append([]byte(nil), prefix...)
	max = append(append([]byte(nil), prefix...), 0xFF)
	return min, max
}

// DecodeRowKey parses a RowKey back into its source document id and emit
// index, skipping over the emitted key itself (whose type the caller
// already knows from context).
func DecodeRowKey(key []byte) (sourceID string, emitIndex int, err error) {
	r := collatable.NewReader(key)
	if err := r.BeginArray(); err != nil {
		return "", 0, err
	}
	if _, err := r.Read(); err != nil { // skip emitted key
		return "", 0, err
	}
	sourceID, err = r.ReadString()
	if err != nil {
		return "", 0, err
	}
	if !r.AtSequenceEnd() {
		idx, err := r.ReadInt()
		if err != nil {
			return "", 0, err
		}
		emitIndex = int(idx)
	}
	return sourceID, emitIndex, nil
}

// docKeyRecordKey is the storage key of the per-document keys record that
// IndexWriter.update maintains to know what a document previously emitted.
func docKeyRecordKey(docID string) []byte {
	return collatable.Encode(collatable.String(docID))
}

// encodeDocKeys packs (hash, keys[]) as a varint-length-prefixed list of
// pre-encoded collatable key blobs, preceded by the djb2 fold hash.
func encodeDocKeys(hash uint32, keys [][]byte) []byte {
	out := make([]byte, 4)
	out[0] = byte(hash >> 24)
	out[1] = byte(hash >> 16)
	out[2] = byte(hash >> 8)
	out[3] = byte(hash)
	out = varint.PutUvarint(out, uint64(len(keys)))
	for _, k := range keys {
		out = varint.PutUvarint(out, uint64(len(k)))
		out = append(out, k...)
	}
	return out
}

func decodeDocKeys(b []byte) (hash uint32, keys [][]byte, ok bool) {
	if len(b) < 4 {
		return 0, nil, false
	}
	hash = uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	b = b[4:]
	n, adv := varint.Uvarint(b)
	if adv <= 0 {
		return 0, nil, false
	}
	b = b[adv:]
	keys = make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		klen, adv := varint.Uvarint(b)
		if adv <= 0 || uint64(len(b)-adv) < klen {
			return 0, nil, false
		}
		b = b[adv:]
		keys = append(keys, append([]byte(nil), b[:klen]...))
		b = b[klen:]
	}
	return hash, keys, true
}

// djb2Fold folds value through the djb2 hash into the running hash acc,
// per spec.md §4.8's "Compute newHash by folding each value through a
// djb2 hash".
func djb2Fold(acc uint32, value []byte) uint32 {
	h := acc
	if h == 0 {
		h = 5381
	}
	for _, c := range value {
		h = ((h << 5) + h) + uint32(c)
	}
	return h
}
