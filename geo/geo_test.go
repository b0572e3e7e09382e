package geo

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thistonyuncle/docstore/index"
	"github.com/thistonyuncle/docstore/store"
)

func TestHashRoundTripsWithinCellBounds(t *testing.T) {
	c := Coord{Lat: 37.7749, Lon: -122.4194}
	hash := Hash(c, 9)
	area, ok := DecodeHash(hash)
	require.True(t, ok)
	assert.True(t, area.ContainsCoord(c))
}

func TestHashLongerIsMorePrecise(t *testing.T) {
	c := Coord{Lat: 37.7749, Lon: -122.4194}
	short, _ := DecodeHash(Hash(c, 3))
	long, _ := DecodeHash(Hash(c, 8))
	shortSpan := short.Lat.Max - short.Lat.Min
	longSpan := long.Lat.Max - long.Lat.Min
	assert.Less(t, longSpan, shortSpan)
}

func TestEncodeAreaCoversInput(t *testing.T) {
	area := Area{Lat: Range{37.7, 37.8}, Lon: Range{-122.5, -122.4}}
	hash := EncodeArea(area)
	decoded, ok := DecodeHash(hash)
	require.True(t, ok)
	assert.True(t, decoded.Contains(area))
}

func TestCoveringHashRangesRespectsMaxCount(t *testing.T) {
	area := Area{Lat: Range{-10, 10}, Lon: Range{-10, 10}}
	ranges := area.CoveringHashRanges(20)
	assert.LessOrEqual(t, len(ranges), 20)
	assert.NotEmpty(t, ranges)
}

func TestCoveringHashRangesAreSorted(t *testing.T) {
	area := Area{Lat: Range{-5, 5}, Lon: Range{-5, 5}}
	ranges := area.CoveringHashRanges(50)
	for i := 1; i < len(ranges); i++ {
		assert.LessOrEqual(t, ranges[i-1].Min, ranges[i].Min)
	}
}

func openTestGeo(t *testing.T) (*store.DataFile, *Index) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.docstore")
	df, err := store.Open(path, store.Options{Create: true, Writeable: true, Backend: store.BackendLogStructured})
	require.NoError(t, err)
	t.Cleanup(func() { df.Close() })
	ks, err := df.KeyStore("geo", store.Capabilities{Sequences: true})
	require.NoError(t, err)
	return df, Open(ks)
}

func indexArea(t *testing.T, df *store.DataFile, gi *Index, docID string, sequence uint64, fullGeoID uint64, area Area) {
	t.Helper()
	emitted := Emit(fullGeoID, area, nil)
	w := index.NewWriter(gi.Underlying())
	defer w.Close()
	txn, err := df.BeginTransaction()
	require.NoError(t, err)
	var rowCount int64
	_, err = w.Update(docID, sequence, emitted, txn, &rowCount)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
}

func TestQueryFindsContainedPoint(t *testing.T) {
	df, gi := openTestGeo(t)
	sf := Area{Lat: Range{37.7749, 37.7749}, Lon: Range{-122.4194, -122.4194}}
	ny := Area{Lat: Range{40.7128, 40.7128}, Lon: Range{-74.006, -74.006}}
	indexArea(t, df, gi, "doc-sf", 1, 1, sf)
	indexArea(t, df, gi, "doc-ny", 2, 1, ny)

	results, err := gi.Query(Area{Lat: Range{37, 38}, Lon: Range{-123, -122}}, 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-sf", results[0].DocID)
}

func TestQueryExcludesNonIntersectingArea(t *testing.T) {
	df, gi := openTestGeo(t)
	sf := Area{Lat: Range{37.7749, 37.7749}, Lon: Range{-122.4194, -122.4194}}
	indexArea(t, df, gi, "doc-sf", 1, 1, sf)

	results, err := gi.Query(Area{Lat: Range{0, 1}, Lon: Range{0, 1}}, 50)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryMatchesCoarserParentHash(t *testing.T) {
	df, gi := openTestGeo(t)
	// A document that emitted a large, coarse area (short hash) should
	// still be found by a query whose covering ranges are much finer.
	wide := Area{Lat: Range{30, 45}, Lon: Range{-130, -115}}
	indexArea(t, df, gi, "doc-wide", 1, 1, wide)

	results, err := gi.Query(Area{Lat: Range{37, 37.1}, Lon: Range{-122.5, -122.4}}, 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-wide", results[0].DocID)
}
