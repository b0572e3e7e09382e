package store

import (
	"github.com/thistonyuncle/docstore/dberrors"
	"github.com/thistonyuncle/docstore/varint"
)

// encodeRecordValue packs meta, body, sequence and the deleted flag into
// the single opaque blob the backend.Engine stores per key. This keeps
// backend.Engine oblivious to record structure (see backend/sqlite_engine.go),
// matching it to the same generic contract the index engine's row storage
// uses.
func encodeRecordValue(meta, body []byte, sequence uint64, deleted bool) []byte {
	out := varint.PutUvarint(nil, uint64(len(meta)))
	out = append(out, meta...)
	out = varint.PutUvarint(out, uint64(len(body)))
	out = append(out, body...)
	out = varint.PutUvarint(out, sequence)
	if deleted {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return out
}

type decodedValue struct {
	meta     []byte
	body     []byte
	sequence uint64
	deleted  bool
}

func decodeRecordValue(v []byte) (decodedValue, error) {
	metaLen, n := varint.Uvarint(v)
	if n <= 0 {
		return decodedValue{}, dberrors.New(dberrors.CorruptIndexData, "record value truncated (meta length)")
	}
	v = v[n:]
	if uint64(len(v)) < metaLen {
		return decodedValue{}, dberrors.New(dberrors.CorruptIndexData, "record value truncated (meta)")
	}
	meta := v[:metaLen]
	v = v[metaLen:]

	bodyLen, n := varint.Uvarint(v)
	if n <= 0 {
		return decodedValue{}, dberrors.New(dberrors.CorruptIndexData, "record value truncated (body length)")
	}
	v = v[n:]
	if uint64(len(v)) < bodyLen {
		return decodedValue{}, dberrors.New(dberrors.CorruptIndexData, "record value truncated (body)")
	}
	body := v[:bodyLen]
	v = v[bodyLen:]

	seq, n := varint.Uvarint(v)
	if n <= 0 {
		return decodedValue{}, dberrors.New(dberrors.CorruptIndexData, "record value truncated (sequence)")
	}
	v = v[n:]
	if len(v) < 1 {
		return decodedValue{}, dberrors.New(dberrors.CorruptIndexData, "record value truncated (deleted flag)")
	}
	return decodedValue{meta: meta, body: body, sequence: seq, deleted: v[0] != 0}, nil
}
