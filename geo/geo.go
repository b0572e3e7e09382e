// Package geo implements the geospatial index of spec.md §4.11: a geohash
// encoder/decoder and a coverage search used to turn a query rectangle into
// a small set of row-key ranges, built on top of the generic index engine.
package geo

import "math"

// Coord is a point on the globe.
type Coord struct {
	Lat, Lon float64
}

// Range is a closed interval [Min, Max].
type Range struct {
	Min, Max float64
}

// Contains reports whether v falls within r, inclusive.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Intersects reports whether r and other overlap at all.
func (r Range) Intersects(other Range) bool {
	return r.Min <= other.Max && other.Min <= r.Max
}

// Area is an axis-aligned lat/lon rectangle, per spec.md §4.11.
type Area struct {
	Lat, Lon Range
}

// ContainsCoord reports whether c falls inside a, inclusive of the edges.
func (a Area) ContainsCoord(c Coord) bool {
	return a.Lat.Contains(c.Lat) && a.Lon.Contains(c.Lon)
}

// Contains reports whether other is entirely inside a.
func (a Area) Contains(other Area) bool {
	return a.Lat.Min <= other.Lat.Min && other.Lat.Max <= a.Lat.Max &&
		a.Lon.Min <= other.Lon.Min && other.Lon.Max <= a.Lon.Max
}

// Intersects reports whether a and other truly overlap, per spec.md
// §4.11's final GeoIndexEnumerator rectangle check.
func (a Area) Intersects(other Area) bool {
	return a.Lat.Intersects(other.Lat) && a.Lon.Intersects(other.Lon)
}

// AreaOfCoord returns the degenerate (zero-size) area at a single point,
// for queries and emissions expressed as a point rather than a rectangle.
func AreaOfCoord(c Coord) Area {
	return Area{Lat: Range{c.Lat, c.Lat}, Lon: Range{c.Lon, c.Lon}}
}

// worldArea is the full extent a geohash of length 0 covers.
var worldArea = Area{Lat: Range{-90, 90}, Lon: Range{-180, 180}}

func clampLat(v float64) float64 { return math.Max(-90, math.Min(90, v)) }
func clampLon(v float64) float64 { return math.Max(-180, math.Min(180, v)) }
