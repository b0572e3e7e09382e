package geo

import "sort"

// HashRange is one contiguous range of geohash strings, per spec.md
// §4.11's "sorted list of contiguous hash ranges covering the area".
type HashRange struct {
	Min, Max string
}

type geoCell struct {
	prefix string
	area   Area
}

// CoveringHashRanges implements spec.md §4.11's coverage search: a
// dynamic-programming walk over hash lengths, stopping a branch once its
// cell is fully contained in a or once refining it further would exceed
// maxCount (default 50) candidate cells. The result is merged into as few
// contiguous ranges as the budget allows.
func (a Area) CoveringHashRanges(maxCount int) []HashRange {
	if maxCount <= 0 {
		maxCount = 50
	}
	level := []geoCell{{"", worldArea}}
	var finalized []geoCell

	for depth := 0; depth <= MaxLength; depth++ {
		var pending []geoCell
		for _, c := range level {
			if !a.Intersects(c.area) {
				continue
			}
			if a.Contains(c.area) {
				finalized = append(finalized, c)
			} else {
				pending = append(pending, c)
			}
		}
		if len(pending) == 0 {
			break
		}
		if depth == MaxLength || len(finalized)+len(pending)*len(alphabet) > maxCount {
			// Refining further would blow the budget (or we've hit the max
			// hash length): accept the pending cells as-is, approximate.
			finalized = append(finalized, pending...)
			break
		}
		next := make([]geoCell, 0, len(pending)*len(alphabet))
		for _, c := range pending {
			for i := 0; i < len(alphabet); i++ {
				childPrefix := c.prefix + string(alphabet[i])
				childArea, _ := DecodeHash(childPrefix)
				next = append(next, geoCell{childPrefix, childArea})
			}
		}
		level = next
	}

	return mergeCells(finalized, maxCount)
}

// cellRange returns the [min,max] string bounds of every hash (of any
// length up to MaxLength) that has c.prefix as a prefix.
func cellRange(prefix string) HashRange {
	pad := MaxLength - len(prefix)
	max := prefix
	if pad > 0 {
		maxChar := alphabet[len(alphabet)-1]
		buf := make([]byte, pad)
		for i := range buf {
			buf[i] = maxChar
		}
		max = prefix + string(buf)
	}
	return HashRange{Min: prefix, Max: max}
}

// mergeCells collapses adjacent same-length cells into single ranges, then
// (if still over budget) repeatedly drops one character of precision from
// every prefix longer than one character until the range count fits
// within maxCount.
func mergeCells(cells []geoCell, maxCount int) []HashRange {
	prefixes := make([]string, len(cells))
	for i, c := range cells {
		prefixes[i] = c.prefix
	}
	for {
		sort.Strings(prefixes)
		prefixes = dedupe(prefixes)
		ranges := mergeAdjacent(prefixes)
		if len(ranges) <= maxCount || allLenOne(prefixes) {
			sort.Slice(ranges, func(i, j int) bool { return ranges[i].Min < ranges[j].Min })
			return ranges
		}
		prefixes = truncateOneChar(prefixes)
	}
}

func dedupe(sorted []string) []string {
	out := sorted[:0:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

func allLenOne(prefixes []string) bool {
	for _, p := range prefixes {
		if len(p) > 1 {
			return false
		}
	}
	return true
}

func truncateOneChar(prefixes []string) []string {
	out := make([]string, len(prefixes))
	for i, p := range prefixes {
		if len(p) > 1 {
			out[i] = p[:len(p)-1]
		} else {
			out[i] = p
		}
	}
	return out
}

// mergeAdjacent merges runs of same-length, lexically-successive prefixes
// into a single contiguous HashRange.
func mergeAdjacent(sorted []string) []HashRange {
	var out []HashRange
	i := 0
	for i < len(sorted) {
		start := sorted[i]
		end := start
		j := i + 1
		for j < len(sorted) && len(sorted[j]) == len(end) {
			next, ok := successor(end)
			if !ok || next != sorted[j] {
				break
			}
			end = sorted[j]
			j++
		}
		r := cellRange(start)
		out = append(out, HashRange{Min: r.Min, Max: cellRange(end).Max})
		i = j
	}
	return out
}
