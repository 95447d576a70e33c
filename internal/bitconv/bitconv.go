package bitconv

import "github.com/yyyoichi/bitstream-go"

// BytesToBools expands b into bits, most significant bit first.
func BytesToBools(b []byte) []bool {
	bits := make([]bool, 0, len(b)*8)
	for _, bb := range b {
		for i := 7; i >= 0; i-- {
			bits = append(bits, ((bb>>uint(i))&1) == 1)
		}
	}
	return bits
}

// BoolsToBytes packs bits into bytes, most significant bit first.
// A trailing partial byte is padded with zero bits.
func BoolsToBytes(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, v := range bits {
		if v {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}

// BoolsToWords packs bits into 64-bit words and returns the words with the
// number of valid bits.
func BoolsToWords(bits []bool) ([]uint64, int) {
	w := bitstream.NewBitWriter[uint64](0, 0)
	for _, v := range bits {
		w.WriteBool(v)
	}
	return w.Data(), len(bits)
}

// WordsToBools unpacks the first n bits of data. Missing bits read as false.
func WordsToBools(data []uint64, n int) []bool {
	r := bitstream.NewBitReader(data, 0, 0)
	r.SetBits(min(n, len(data)*64))
	bits := make([]bool, n)
	for i := range min(n, r.Bits()) {
		bits[i], _ = r.ReadBitAt(i)
	}
	return bits
}
