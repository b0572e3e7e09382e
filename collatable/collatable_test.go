package collatable

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripScalars(t *testing.T) {
	enc := Encode(Int(42))
	r := NewReader(enc)
	v, err := r.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int64(42), v)

	enc = Encode(Number(-3.5))
	r = NewReader(enc)
	f, err := r.ReadDouble()
	require.NoError(t, err)
	require.Equal(t, -3.5, f)

	enc = Encode(String("hello"))
	r = NewReader(enc)
	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	enc = Encode(Bool(true))
	r = NewReader(enc)
	b, err := r.ReadBool()
	require.NoError(t, err)
	require.True(t, b)

	enc = Encode(Null)
	r = NewReader(enc)
	require.NoError(t, r.ReadNull())
}

func TestStringPriorityOrder(t *testing.T) {
	words := []string{"Banana", "apple", "APPLE", "apple2", "1apple", "_apple", "banana"}
	encoded := make([][]byte, len(words))
	for i, w := range words {
		encoded[i] = Encode(String(w))
	}
	idx := make([]int, len(words))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		return bytes.Compare(encoded[idx[i]], encoded[idx[j]]) < 0
	})
	got := make([]string, len(words))
	for i, k := range idx {
		got[i] = words[k]
	}
	// '_' (punctuation) < digit '1' < letters; among "apple"/"apple2" the
	// shorter, zero-terminated string sorts first; each letter's lowercase
	// form sorts just before its uppercase form, byte by byte, so "apple2"
	// (lowercase 'a') sorts before "APPLE" and "banana" before "Banana".
	require.Equal(t, []string{"_apple", "1apple", "apple", "apple2", "APPLE", "banana", "Banana"}, got)
}

func TestNumberOrder(t *testing.T) {
	nums := []float64{-100, -1, -0.5, 0, 0.5, 1, 100}
	encoded := make([][]byte, len(nums))
	for i, n := range nums {
		encoded[i] = Encode(Number(n))
	}
	for i := 1; i < len(encoded); i++ {
		require.True(t, bytes.Compare(encoded[i-1], encoded[i]) < 0, "expected %v < %v", nums[i-1], nums[i])
	}
}

func TestArrayAndMapNesting(t *testing.T) {
	v := Array(Int(1), String("x"), Array(Int(2), Int(3)))
	enc := Encode(v)
	r := NewReader(enc)
	require.NoError(t, r.BeginArray())
	i1, err := r.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int64(1), i1)
	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "x", s)
	require.NoError(t, r.BeginArray())
	i2, err := r.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int64(2), i2)
	i3, err := r.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int64(3), i3)
	require.NoError(t, r.EndArray())
	require.NoError(t, r.EndArray())
	require.True(t, r.AtEnd())

	m := Map(KV{Key: String("a"), Value: Int(1)}, KV{Key: String("b"), Value: Int(2)})
	enc2 := Encode(m)
	r2 := NewReader(enc2)
	require.NoError(t, r2.BeginMap())
	for !r2.AtSequenceEnd() {
		k, err := r2.ReadString()
		require.NoError(t, err)
		_, err = r2.ReadInt()
		require.NoError(t, err)
		require.Contains(t, []string{"a", "b"}, k)
	}
	require.NoError(t, r2.EndMap())
}

func TestReadSkipsOneValue(t *testing.T) {
	v := Array(Int(1), Array(Int(2), Int(3)), Int(4))
	enc := Encode(v)
	r := NewReader(enc)
	require.NoError(t, r.BeginArray())
	raw, err := r.Read()
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	raw, err = r.Read() // nested array, skipped whole
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	n, err := r.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
	require.NoError(t, r.EndArray())
}

func TestCorruptIndexDataOnUnderrun(t *testing.T) {
	r := NewReader([]byte{byte(TagString), 'h', 'i'}) // missing terminator
	_, err := r.ReadString()
	require.Error(t, err)
}

func TestTagsSortBeforeEachOther(t *testing.T) {
	require.True(t, TagNull < TagFalse)
	require.True(t, TagFalse < TagTrue)
	require.True(t, TagNegative < TagPositive)
	require.True(t, TagString < TagArray)
	require.True(t, TagArray < TagMap)
}
