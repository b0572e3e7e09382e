package geo

import (
	"github.com/thistonyuncle/docstore/collatable"
	"github.com/thistonyuncle/docstore/dberrors"
	"github.com/thistonyuncle/docstore/index"
	"github.com/thistonyuncle/docstore/store"
)

// Index is a geospatial index: a generic Index whose rows are keyed by
// geohash, per spec.md §4.11.
type Index struct {
	idx *index.Index
}

// Open returns a geospatial Index over ks.
func Open(ks *store.KeyStore) *Index {
	return &Index{idx: index.Open(ks)}
}

// Underlying returns the generic Index.
func (gi *Index) Underlying() *index.Index { return gi.idx }

// Emit implements spec.md §4.11's emission: the row key is the geohash
// encoding area, and the row value is a pointer to an auxiliary special
// row carrying the full rectangle and an optional original emitted value.
// fullGeoID must be unique across every area a single document emits.
func Emit(fullGeoID uint64, area Area, originalValue collatable.Value) []index.Emitted {
	special := []collatable.Value{
		collatable.Number(area.Lat.Min), collatable.Number(area.Lat.Max),
		collatable.Number(area.Lon.Min), collatable.Number(area.Lon.Max),
	}
	if originalValue != nil {
		special = append(special, collatable.Array(originalValue))
	}

	hash := EncodeArea(area)
	return []index.Emitted{
		{
			Key:   collatable.GeoJSONKey(fullGeoID),
			Value: collatable.Encode(collatable.Array(special...)),
		},
		{
			Key:   collatable.Geohash(hash),
			Value: collatable.Encode(collatable.Array(collatable.GeoJSONKey(fullGeoID))),
		},
	}
}

// ReadArea loads the full rectangle (and raw original-value bytes, if any)
// for one fullGeoID, stored under the special GeoJSONKey row.
func (gi *Index) ReadArea(docID string, fullGeoID uint64, emitIndex int) (Area, []byte, error) {
	row, err := gi.idx.KeyStore().Get(index.RowKey(collatable.GeoJSONKey(fullGeoID), docID, emitIndex), false)
	if err != nil {
		return Area{}, nil, err
	}
	if !row.Exists {
		return Area{}, nil, dberrors.New(dberrors.NotFound, "ReadArea: no special row for fullGeoID")
	}
	r := collatable.NewReader(row.Body)
	if err := r.BeginArray(); err != nil {
		return Area{}, nil, err
	}
	latMin, err := r.ReadDouble()
	if err != nil {
		return Area{}, nil, err
	}
	latMax, err := r.ReadDouble()
	if err != nil {
		return Area{}, nil, err
	}
	lonMin, err := r.ReadDouble()
	if err != nil {
		return Area{}, nil, err
	}
	lonMax, err := r.ReadDouble()
	if err != nil {
		return Area{}, nil, err
	}
	area := Area{Lat: Range{latMin, latMax}, Lon: Range{lonMin, lonMax}}
	var original []byte
	if !r.AtSequenceEnd() {
		if err := r.BeginArray(); err != nil {
			return Area{}, nil, err
		}
		raw, err := r.Read()
		if err != nil {
			return Area{}, nil, err
		}
		original = raw
		if err := r.EndArray(); err != nil {
			return Area{}, nil, err
		}
	}
	if err := r.EndArray(); err != nil {
		return Area{}, nil, err
	}
	return area, original, nil
}
