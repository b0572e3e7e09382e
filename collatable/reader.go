package collatable

import (
	"math"

	"github.com/thistonyuncle/docstore/dberrors"
	"github.com/thistonyuncle/docstore/varint"
)

// Reader walks a collatable encoding produced by Builder. End-of-data
// during any read is reported as a CorruptIndexData error, per spec.md
// §4.3.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps data for reading. data is not copied or retained beyond
// what the caller already owns.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func errCorrupt(msg string) error {
	return dberrors.New(dberrors.CorruptIndexData, msg)
}

// AtEnd reports whether the reader has consumed the whole input.
func (r *Reader) AtEnd() bool { return r.pos >= len(r.data) }

// PeekTag returns the next value's tag without consuming it.
func (r *Reader) PeekTag() (Tag, error) {
	if r.pos >= len(r.data) {
		return 0, errCorrupt("peekTag: end of data")
	}
	return Tag(r.data[r.pos]), nil
}

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.data) {
		return errCorrupt("unexpected end of data")
	}
	return nil
}

// ReadNull consumes a null value.
func (r *Reader) ReadNull() error {
	tag, err := r.PeekTag()
	if err != nil {
		return err
	}
	if tag != TagNull {
		return errCorrupt("expected null tag")
	}
	r.pos++
	return nil
}

// ReadBool consumes a bool value.
func (r *Reader) ReadBool() (bool, error) {
	tag, err := r.PeekTag()
	if err != nil {
		return false, err
	}
	switch tag {
	case TagTrue:
		r.pos++
		return true, nil
	case TagFalse:
		r.pos++
		return false, nil
	default:
		return false, errCorrupt("expected bool tag")
	}
}

// ReadDouble consumes a numeric value.
func (r *Reader) ReadDouble() (float64, error) {
	tag, err := r.PeekTag()
	if err != nil {
		return 0, err
	}
	if tag != TagPositive && tag != TagNegative {
		return 0, errCorrupt("expected number tag")
	}
	if err := r.need(9); err != nil {
		return 0, err
	}
	raw := r.data[r.pos+1 : r.pos+9]
	var bits uint64
	for i := 0; i < 8; i++ {
		bits = bits<<8 | uint64(raw[i])
	}
	if tag == TagNegative {
		bits = ^bits
	}
	r.pos += 9
	return math.Float64frombits(bits), nil
}

// ReadInt consumes a numeric value and requires it to be an exact integer,
// per spec.md §4.3 ("validates that the double is an exact integer").
func (r *Reader) ReadInt() (int64, error) {
	f, err := r.ReadDouble()
	if err != nil {
		return 0, err
	}
	i := int64(f)
	if float64(i) != f {
		return 0, errCorrupt("readInt: value is not an exact integer")
	}
	return i, nil
}

func (r *Reader) readDelimited(tag Tag) (string, error) {
	t, err := r.PeekTag()
	if err != nil {
		return "", err
	}
	if t != tag {
		return "", errCorrupt("unexpected tag for delimited string")
	}
	start := r.pos + 1
	i := start
	for {
		if i >= len(r.data) {
			return "", errCorrupt("unterminated string")
		}
		if r.data[i] == 0 {
			break
		}
		i++
	}
	decoded := decodeStringBytes(r.data[start:i])
	r.pos = i + 1
	return string(decoded), nil
}

// ReadString consumes a string value.
func (r *Reader) ReadString() (string, error) {
	return r.readDelimited(TagString)
}

// ReadGeohash consumes a geohash value.
func (r *Reader) ReadGeohash() (string, error) {
	return r.readDelimited(TagGeohash)
}

// ReadFullTextKey / ReadGeoJSONKey consume the placeholder keys used by the
// full-text and geo indexes for their auxiliary rows (spec.md §5).
func (r *Reader) ReadFullTextKey() (uint64, error) {
	return r.readTaggedVarint(TagFullTextKey)
}

func (r *Reader) ReadGeoJSONKey() (uint64, error) {
	return r.readTaggedVarint(TagGeoJSONKey)
}

func (r *Reader) readTaggedVarint(tag Tag) (uint64, error) {
	t, err := r.PeekTag()
	if err != nil {
		return 0, err
	}
	if t != tag {
		return 0, errCorrupt("unexpected tag for varint-tagged value")
	}
	v, n := varint.Uvarint(r.data[r.pos+1:])
	if n <= 0 {
		return 0, errCorrupt("truncated varint")
	}
	r.pos += 1 + n
	return v, nil
}

// ReadSpecial consumes the zero-length "special" sentinel value.
func (r *Reader) ReadSpecial() error {
	tag, err := r.PeekTag()
	if err != nil {
		return err
	}
	if tag != TagSpecial {
		return errCorrupt("expected special tag")
	}
	r.pos++
	return nil
}

// BeginArray consumes an array's opening tag.
func (r *Reader) BeginArray() error {
	tag, err := r.PeekTag()
	if err != nil {
		return err
	}
	if tag != TagArray {
		return errCorrupt("expected array tag")
	}
	r.pos++
	return nil
}

// EndArray consumes an array's closing endSequence tag.
func (r *Reader) EndArray() error {
	return r.endSequence()
}

func (r *Reader) BeginMap() error {
	tag, err := r.PeekTag()
	if err != nil {
		return err
	}
	if tag != TagMap {
		return errCorrupt("expected map tag")
	}
	r.pos++
	return nil
}

func (r *Reader) EndMap() error {
	return r.endSequence()
}

func (r *Reader) endSequence() error {
	tag, err := r.PeekTag()
	if err != nil {
		return err
	}
	if tag != TagEndSequence {
		return errCorrupt("expected end-of-sequence tag")
	}
	r.pos++
	return nil
}

// AtSequenceEnd reports whether the next tag is an end-of-sequence marker,
// without consuming it — used to drive "while not at end" loops over array
// or map elements.
func (r *Reader) AtSequenceEnd() bool {
	tag, err := r.PeekTag()
	return err == nil && tag == TagEndSequence
}

// Read skips exactly one value (scalar or full container) and returns its
// raw encoded bytes.
func (r *Reader) Read() ([]byte, error) {
	start := r.pos
	if err := r.skipOne(); err != nil {
		return nil, err
	}
	return r.data[start:r.pos], nil
}

func (r *Reader) skipOne() error {
	tag, err := r.PeekTag()
	if err != nil {
		return err
	}
	switch tag {
	case TagNull, TagFalse, TagTrue:
		r.pos++
		return nil
	case TagPositive, TagNegative:
		return r.need9AndAdvance()
	case TagString, TagGeohash:
		_, err := r.readDelimited(tag)
		return err
	case TagFullTextKey, TagGeoJSONKey:
		_, err := r.readTaggedVarint(tag)
		return err
	case TagSpecial:
		r.pos++
		return nil
	case TagArray:
		r.pos++
		for !r.AtSequenceEnd() {
			if err := r.skipOne(); err != nil {
				return err
			}
		}
		return r.endSequence()
	case TagMap:
		r.pos++
		for !r.AtSequenceEnd() {
			if err := r.skipOne(); err != nil { // key
				return err
			}
			if err := r.skipOne(); err != nil { // value
				return err
			}
		}
		return r.endSequence()
	default:
		return errCorrupt("unknown tag")
	}
}

func (r *Reader) need9AndAdvance() error {
	if err := r.need(9); err != nil {
		return err
	}
	r.pos += 9
	return nil
}
