package geo

import (
	"github.com/thistonyuncle/docstore/collatable"
	"github.com/thistonyuncle/docstore/index"
	"github.com/thistonyuncle/docstore/store"
)

// hashByteRange returns the RowKey byte bounds bracketing every row whose
// geohash lies in the inclusive string range [minHash, maxHash], for any
// source document or emit index.
func hashByteRange(minHash, maxHash string) (min, max []byte) {
	minFull := collatable.Encode(collatable.Array(collatable.Geohash(minHash)))
	maxFull := collatable.Encode(collatable.Array(collatable.Geohash(maxHash)))
	minPrefix := minFull[:len(minFull)-1]
	maxPrefix := maxFull[:len(maxFull)-1]
	min = append([]byte(nil), minPrefix...)
	max = append(append([]byte(nil), maxPrefix...), 0xFF)
	return min, max
}

// strictPrefixes returns every strict prefix of s (length 0..len(s)-1),
// including the empty hash EncodeArea yields for an area that spans more
// than one top-level cell.
func strictPrefixes(s string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for i := 0; i < len(s); i++ {
		out = append(out, s[:i])
	}
	return out
}

// Match is one surviving result of a geospatial query: a document that
// emitted an area truly intersecting the search area.
type Match struct {
	DocID      string
	Sequence   uint64
	FullGeoID  uint64
	Area       Area
	Original   []byte
}

// Query implements spec.md §4.11's GeoIndexEnumerator: covers searchArea
// with contiguous hash ranges (plus, per range, the strict prefixes of its
// first hash as exact keys, so a coarser parent hash a document emitted
// still matches), deduplicates by (docID, fullGeoID), loads each
// candidate's full rectangle, and rejects any that does not truly
// intersect searchArea.
func (gi *Index) Query(searchArea Area, maxCount int) ([]Match, error) {
	covering := searchArea.CoveringHashRanges(maxCount)

	var ranges []index.KeyRange
	for _, hr := range covering {
		min, max := hashByteRange(hr.Min, hr.Max)
		ranges = append(ranges, index.KeyRange{Min: min, Max: max, InclusiveEnd: true})
		for _, prefix := range strictPrefixes(hr.Min) {
			pmin, pmax := index.KeyRangeForExactKey(collatable.Geohash(prefix))
			ranges = append(ranges, index.KeyRange{Min: pmin, Max: pmax, InclusiveEnd: true})
		}
	}
	if len(ranges) == 0 {
		return nil, nil
	}

	en := index.NewEnumerator(gi.idx, ranges, store.DefaultEnumOptions(), nil)
	defer en.Close()

	type seenKey struct {
		docID     string
		fullGeoID uint64
	}
	seen := make(map[seenKey]bool)
	var matches []Match

	for {
		ok, err := en.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		row := en.Row()
		docID, emitIndex, err := index.DecodeRowKey(row.Key)
		if err != nil {
			return nil, err
		}
		r := collatable.NewReader(row.Value)
		if err := r.BeginArray(); err != nil {
			return nil, err
		}
		fullGeoID, err := r.ReadGeoJSONKey()
		if err != nil {
			return nil, err
		}
		if err := r.EndArray(); err != nil {
			return nil, err
		}

		key := seenKey{docID, fullGeoID}
		if seen[key] {
			continue
		}
		seen[key] = true

		// Emit always places the special GeoJSONKey row immediately before
		// its geohash pointer row in a document's emission list, so the
		// special row's emitIndex is always one less than this one's.
		area, original, err := gi.ReadArea(docID, fullGeoID, emitIndex-1)
		if err != nil {
			return nil, err
		}
		if !searchArea.Intersects(area) {
			continue
		}
		matches = append(matches, Match{
			DocID:     docID,
			Sequence:  row.Sequence,
			FullGeoID: fullGeoID,
			Area:      area,
			Original:  original,
		})
	}
	return matches, nil
}
