package geo

import "strings"

// alphabet is the standard geohash base-32 alphabet (omits a, i, l, o to
// avoid visual confusion), per spec.md §4.11.
const alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// MaxLength is the longest hash this package will produce or accept, per
// spec.md §4.11 ("Max length 22").
const MaxLength = 22

var charIndex [256]int8

func init() {
	for i := range charIndex {
		charIndex[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		charIndex[alphabet[i]] = int8(i)
	}
}

// Hash encodes coord as a geohash of exactly nChars characters, alternating
// bits between the longitude and latitude ranges starting with longitude,
// per spec.md §4.11.
func Hash(coord Coord, nChars int) string {
	if nChars > MaxLength {
		nChars = MaxLength
	}
	lat, lon := Range{-90, 90}, Range{-180, 180}
	var out strings.Builder
	isEven := true
	bit, ch := 0, 0
	for out.Len() < nChars {
		if isEven {
			mid := (lon.Min + lon.Max) / 2
			if coord.Lon >= mid {
				ch = ch<<1 | 1
				lon.Min = mid
			} else {
				ch = ch << 1
				lon.Max = mid
			}
		} else {
			mid := (lat.Min + lat.Max) / 2
			if coord.Lat >= mid {
				ch = ch<<1 | 1
				lat.Min = mid
			} else {
				ch = ch << 1
				lat.Max = mid
			}
		}
		isEven = !isEven
		bit++
		if bit == 5 {
			out.WriteByte(alphabet[ch])
			bit, ch = 0, 0
		}
	}
	return out.String()
}

// DecodeHash returns the rectangle a geohash string denotes: every point
// whose Hash at that length would reproduce the same string.
func DecodeHash(hash string) (Area, bool) {
	lat, lon := Range{-90, 90}, Range{-180, 180}
	isEven := true
	for i := 0; i < len(hash); i++ {
		idx := charIndex[hash[i]]
		if idx < 0 {
			return Area{}, false
		}
		for bit := 4; bit >= 0; bit-- {
			set := idx&(1<<uint(bit)) != 0
			if isEven {
				mid := (lon.Min + lon.Max) / 2
				if set {
					lon.Min = mid
				} else {
					lon.Max = mid
				}
			} else {
				mid := (lat.Min + lat.Max) / 2
				if set {
					lat.Min = mid
				} else {
					lat.Max = mid
				}
			}
			isEven = !isEven
		}
	}
	return Area{Lat: lat, Lon: lon}, true
}

// EncodeArea returns the longest geohash prefix whose decoded rectangle
// fully contains area: the common prefix of the area's two opposite
// corners hashed at MaxLength, per spec.md §4.11's "geohash encoding the
// point/area". A degenerate (point) area returns the full MaxLength hash.
func EncodeArea(area Area) string {
	sw := Hash(Coord{Lat: area.Lat.Min, Lon: area.Lon.Min}, MaxLength)
	ne := Hash(Coord{Lat: area.Lat.Max, Lon: area.Lon.Max}, MaxLength)
	i := 0
	for i < len(sw) && i < len(ne) && sw[i] == ne[i] {
		i++
	}
	if i == 0 {
		return ""
	}
	return sw[:i]
}

// successor returns the lexically next string of the same length over the
// geohash alphabet, or ok=false if s is already the maximum (all 'z's).
func successor(s string) (string, bool) {
	b := []byte(s)
	for i := len(b) - 1; i >= 0; i-- {
		idx := charIndex[b[i]]
		if int(idx) < len(alphabet)-1 {
			b[i] = alphabet[idx+1]
			return string(b), true
		}
		b[i] = alphabet[0]
	}
	return "", false
}
