// Package mapreduce implements the MapReduceIndex and Indexer of
// spec.md §4.9: incremental map-function indexing over a source KeyStore,
// built on the generic index engine.
package mapreduce

import (
	"github.com/thistonyuncle/docstore/collatable"
	"github.com/thistonyuncle/docstore/dberrors"
)

// minFormatVersion is the lowest state-record format version this package
// understands; anything older is treated as an empty index, per spec.md
// §4.9.
const minFormatVersion = 1
const currentFormatVersion = 1

// stateKey is the storage key of the per-index state record: collatable(null).
func stateKey() []byte { return collatable.Encode(collatable.Null) }

// indexState is the persisted [lastSeqIndexed, lastSeqChangedAt, mapVersion,
// indexType, rowCount, formatVersion, lastPurgeCount] record of spec.md §4.9.
type indexState struct {
	LastSeqIndexed   uint64
	LastSeqChangedAt uint64
	MapVersion       int
	IndexType        string
	RowCount         int64
	FormatVersion    int
	LastPurgeCount   uint64
}

func encodeState(s indexState) []byte {
	return collatable.Encode(collatable.Array(
		collatable.Int(int64(s.LastSeqIndexed)),
		collatable.Int(int64(s.LastSeqChangedAt)),
		collatable.Int(int64(s.MapVersion)),
		collatable.String(s.IndexType),
		collatable.Int(s.RowCount),
		collatable.Int(int64(s.FormatVersion)),
		collatable.Int(int64(s.LastPurgeCount)),
	))
}

func decodeState(data []byte) (indexState, error) {
	if data == nil {
		return indexState{FormatVersion: 0}, nil
	}
	r := collatable.NewReader(data)
	if err := r.BeginArray(); err != nil {
		return indexState{}, err
	}
	lastSeqIndexed, err := r.ReadInt()
	if err != nil {
		return indexState{}, err
	}
	lastSeqChangedAt, err := r.ReadInt()
	if err != nil {
		return indexState{}, err
	}
	mapVersion, err := r.ReadInt()
	if err != nil {
		return indexState{}, err
	}
	indexType, err := r.ReadString()
	if err != nil {
		return indexState{}, err
	}
	rowCount, err := r.ReadInt()
	if err != nil {
		return indexState{}, err
	}
	formatVersion, err := r.ReadInt()
	if err != nil {
		return indexState{}, err
	}
	lastPurgeCount, err := r.ReadInt()
	if err != nil {
		return indexState{}, err
	}
	if err := r.EndArray(); err != nil {
		return indexState{}, err
	}
	return indexState{
		LastSeqIndexed:   uint64(lastSeqIndexed),
		LastSeqChangedAt: uint64(lastSeqChangedAt),
		MapVersion:       int(mapVersion),
		IndexType:        indexType,
		RowCount:         rowCount,
		FormatVersion:    int(formatVersion),
		LastPurgeCount:   uint64(lastPurgeCount),
	}, nil
}

func errCorrupt(msg string) error {
	return dberrors.New(dberrors.CorruptIndexData, msg)
}
