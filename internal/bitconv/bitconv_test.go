package bitconv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitConv(t *testing.T) {
	test := []struct {
		data []byte
		exp  []byte
	}{
		{data: []byte{0b10101010}, exp: []byte{0b10101010}},
		{data: []byte{0b11110000, 0b00001111}, exp: []byte{0b11110000, 0b00001111}},
		{data: []byte("Hello"), exp: []byte("Hello")},
		{data: []byte("こんにちは"), exp: []byte("こんにちは")},
		{data: []byte("🍣"), exp: []byte("🍣")},
		{data: []byte{}, exp: []byte{}},
	}
	for _, tt := range test {
		bits := BytesToBools(tt.data)
		assert.Len(t, bits, len(tt.data)*8)
		out := BoolsToBytes(bits)
		assert.Equal(t, tt.exp, out)
	}

	t.Run("msb first", func(t *testing.T) {
		assert.Equal(t, []bool{true, false, false, false, false, false, false, true}, BytesToBools([]byte{0x81}))
		assert.Equal(t, []byte{0b10100000}, BoolsToBytes([]bool{true, false, true}))
	})
}

func TestWords(t *testing.T) {
	for _, n := range []int{0, 1, 12, 63, 64, 65, 168, 300} {
		bits := make([]bool, n)
		for i := range bits {
			bits[i] = i%3 == 0 || i%7 == 1
		}
		words, size := BoolsToWords(bits)
		assert.Equal(t, n, size)
		assert.GreaterOrEqual(t, len(words)*64, n)
		assert.Equal(t, bits, WordsToBools(words, size))
	}

	// reading past the data yields zero bits
	assert.Equal(t, make([]bool, 10), WordsToBools(nil, 10))
}
