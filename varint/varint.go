// Package varint implements the length-prefixed integer and big-endian
// float codecs shared by the collatable, revtree and index encodings.
package varint

import (
	"encoding/binary"
	"math"
)

// PutUvarint appends the LEB128 unsigned varint encoding of v to dst and
// returns the extended slice.
func PutUvarint(dst []byte, v uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return append(dst, buf[:n]...)
}

// Uvarint reads a varint from the front of src, returning the value and the
// number of bytes consumed, or (0, 0) if src does not hold a complete
// varint.
func Uvarint(src []byte) (uint64, int) {
	return binary.Uvarint(src)
}

// PutBEDouble appends the big-endian 8-byte IEEE-754 encoding of f to dst.
func PutBEDouble(dst []byte, f float64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
	return append(dst, buf[:]...)
}

// BEDouble decodes an 8-byte big-endian IEEE-754 double from the front of
// src. Callers must ensure len(src) >= 8.
func BEDouble(src []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(src))
}

// PutBEUint16 / BEUint16 are used by the revtree encoding for parent
// indices.
func PutBEUint16(dst []byte, v uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return append(dst, buf[:]...)
}

func BEUint16(src []byte) uint16 {
	return binary.BigEndian.Uint16(src)
}

func PutBEUint32(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

func BEUint32(src []byte) uint32 {
	return binary.BigEndian.Uint32(src)
}
