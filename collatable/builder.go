// Package collatable implements the order-preserving binary codec of
// spec.md §4.3: byte-comparing two encoded values is equivalent to
// comparing the original JSON-like values under the semantic order (numbers
// by magnitude, strings Unicode-ordered case-insensitively, containers by
// first differing element).
package collatable

import (
	"math"

	"github.com/thistonyuncle/docstore/varint"
)

// Builder accumulates a single self-delimiting collatable encoding.
type Builder struct {
	buf []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Bytes returns the accumulated encoding. The Builder may keep being used
// afterward; Bytes reflects the buffer at call time.
func (b *Builder) Bytes() []byte {
	return b.buf
}

func (b *Builder) AddNull() *Builder {
	b.buf = append(b.buf, byte(TagNull))
	return b
}

func (b *Builder) AddBool(v bool) *Builder {
	if v {
		b.buf = append(b.buf, byte(TagTrue))
	} else {
		b.buf = append(b.buf, byte(TagFalse))
	}
	return b
}

// AddDouble encodes a number as 8 big-endian IEEE-754 bytes preceded by a
// sign tag; negative numbers have all bits inverted so two's-complement-
// like unsigned comparison still yields the numeric order.
func (b *Builder) AddDouble(v float64) *Builder {
	bits := math.Float64bits(v)
	if v < 0 {
		b.buf = append(b.buf, byte(TagNegative))
		bits = ^bits
	} else {
		b.buf = append(b.buf, byte(TagPositive))
	}
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(bits >> uint(56-8*i))
	}
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *Builder) AddInt(v int64) *Builder {
	return b.AddDouble(float64(v))
}

// AddString encodes s through the byte priority table, zero-terminated.
func (b *Builder) AddString(s string) *Builder {
	b.buf = append(b.buf, byte(TagString))
	b.buf = append(b.buf, encodeStringBytes([]byte(s))...)
	b.buf = append(b.buf, 0)
	return b
}

// AddGeohash encodes a geohash string under its own tag so geo rows sort
// apart from ordinary strings/map-reduce keys.
func (b *Builder) AddGeohash(hash string) *Builder {
	b.buf = append(b.buf, byte(TagGeohash))
	b.buf = append(b.buf, encodeStringBytes([]byte(hash))...)
	b.buf = append(b.buf, 0)
	return b
}

// AddRaw appends an already-encoded sub-value verbatim; used to splice a
// previously built Builder's Bytes() into a parent container.
func (b *Builder) AddRaw(encoded []byte) *Builder {
	b.buf = append(b.buf, encoded...)
	return b
}

func (b *Builder) BeginArray() *Builder {
	b.buf = append(b.buf, byte(TagArray))
	return b
}

func (b *Builder) EndArray() *Builder {
	b.buf = append(b.buf, byte(TagEndSequence))
	return b
}

func (b *Builder) BeginMap() *Builder {
	b.buf = append(b.buf, byte(TagMap))
	return b
}

func (b *Builder) EndMap() *Builder {
	b.buf = append(b.buf, byte(TagEndSequence))
	return b
}

// AddSpecial marks a row's value placeholder: a special, zero-length value
// used by the index engine to mean "re-emit every update" (spec.md §4.8)
// and by the full-text/geo indexes to tag their auxiliary rows (spec.md
// §5, supplementing the distilled spec's tag-alphabet listing with real
// call sites).
func (b *Builder) AddSpecial() *Builder {
	b.buf = append(b.buf, byte(TagSpecial))
	return b
}

func (b *Builder) AddFullTextKey(id uint64) *Builder {
	b.buf = append(b.buf, byte(TagFullTextKey))
	b.buf = varint.PutUvarint(b.buf, id)
	return b
}

func (b *Builder) AddGeoJSONKey(id uint64) *Builder {
	b.buf = append(b.buf, byte(TagGeoJSONKey))
	b.buf = varint.PutUvarint(b.buf, id)
	return b
}

// Encode is a convenience one-shot encoder for a single Value tree (see
// value.go), useful in tests and from the index engine's row-key builder.
func Encode(v Value) []byte {
	b := NewBuilder()
	v.collate(b)
	return b.Bytes()
}
