package collatable

// Tag is the one-byte type discriminator of spec.md §4.3. Tag values are
// themselves in the semantic sort order: byte-comparing two encodings with
// different leading tags is equivalent to comparing the tags.
type Tag byte

const (
	TagEndSequence Tag = 0
	TagNull        Tag = 1
	TagFalse       Tag = 2
	TagTrue        Tag = 3
	TagNegative    Tag = 4
	TagPositive    Tag = 5
	TagString      Tag = 6
	TagArray       Tag = 7
	TagMap         Tag = 8
	TagGeohash     Tag = 9
	TagSpecial     Tag = 10
	TagFullTextKey Tag = 11
	TagGeoJSONKey  Tag = 12
	TagError       Tag = 255
)

// punctuationOrder is CBForest's kInverseMap (Collatable.cc's
// getCharPriorityMap), reproduced byte for byte. It is a hand-curated
// order, not an ascending byte-value sort: spec.md §4.3 only buckets
// "punctuation/control before digits before letters" coarsely, so the
// intra-bucket order here follows this literal ground truth. Any ASCII
// control byte not listed here keeps priority 0 (ties with every other
// such byte), matching kCharPriority's C++ zero-initialization.
const punctuationOrder = "\t\n\r `^_-,;:!?.'\"()[]{}@*/\\&#%+<=>|~$"

// byteTable maps each input byte to a collation priority, built so that
// ASCII punctuation/control bytes (in punctuationOrder's order) sort
// before digits, digits sort before letters, and letters collate
// case-insensitively with lowercase before uppercase. Bytes >=128 (UTF-8
// continuation/lead bytes) map to themselves, which is already the
// correct relative order for valid UTF-8.
//
// DEL (0x7F) is not in punctuationOrder and so would keep priority 0 per
// the above; per spec.md §4.3's permissive "may decode to space", it is
// instead given space's priority and decodes back to space.
var (
	forwardTable [256]byte
	reverseTable [256]byte
)

func init() {
	priority := byte(1)

	assign := func(b byte) {
		forwardTable[b] = priority
		// First writer for a given priority wins the reverse mapping; DEL
		// is assigned after space below, so space's entry stands.
		if reverseTable[priority] == 0 {
			reverseTable[priority] = b
		}
		priority++
	}

	// 1. Punctuation and control bytes, in kInverseMap's literal order.
	for i := 0; i < len(punctuationOrder); i++ {
		assign(punctuationOrder[i])
	}

	// 2. Digits '0'..'9'.
	for b := byte('0'); b <= '9'; b++ {
		assign(b)
	}

	// 3. Letters, case-insensitive, lowercase before uppercase.
	for c := byte(0); c < 26; c++ {
		assign('a' + c)
		assign('A' + c)
	}

	// DEL (0x7F) has no unique slot; it collates (and decodes) as space.
	forwardTable[0x7F] = forwardTable[' ']

	// 4. Bytes >=128 map to themselves.
	for b := 128; b < 256; b++ {
		forwardTable[b] = byte(b)
		reverseTable[b] = byte(b)
	}
}

// encodeStringBytes applies the priority table to s, the way
// CollatableBuilder.AddString does.
func encodeStringBytes(s []byte) []byte {
	out := make([]byte, len(s))
	for i, b := range s {
		out[i] = forwardTable[b]
	}
	return out
}

// decodeStringBytes reverses encodeStringBytes.
func decodeStringBytes(s []byte) []byte {
	out := make([]byte, len(s))
	for i, b := range s {
		out[i] = reverseTable[b]
	}
	return out
}
