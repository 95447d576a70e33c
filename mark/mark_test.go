package mark

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testID = uuid.MustParse("6f1c1e0e-8d39-4c59-bb0e-7a3c2b0d9f11")

func TestEncodeDecode(t *testing.T) {
	key := []byte("K")
	test := []struct {
		name    string
		message []byte
	}{
		{"empty", nil},
		{"ascii", []byte("My secret message")},
		{"utf8", []byte("透かし🍣")},
		{"long length prefix", bytes.Repeat([]byte{0xAB}, 200)},
		{"max", bytes.Repeat([]byte{'x'}, MaxMessageLen)},
	}
	for _, tt := range test {
		t.Run(tt.name, func(t *testing.T) {
			bits, err := Encode(key, testID, tt.message)
			require.NoError(t, err)
			assert.Len(t, bits, FrameLen(len(tt.message)))

			total, err := FrameBits(bits[:HeaderBits])
			require.NoError(t, err)
			assert.Equal(t, len(bits), total)

			p, err := Decode(bits)
			require.NoError(t, err)
			assert.Equal(t, testID, p.ContentID)
			assert.Equal(t, len(tt.message), len(p.Message))
			assert.True(t, bytes.Equal(tt.message, p.Message))

			// trailing bits are ignored
			p2, err := Decode(append(bits, true, false, true))
			require.NoError(t, err)
			assert.Equal(t, p, p2)
		})
	}
}

func TestFrameLen(t *testing.T) {
	assert.Equal(t, MinFrameBits, FrameLen(0))
	assert.Equal(t, 264, MinFrameBits)
	assert.Equal(t, 168, HeaderBits)
	assert.Equal(t, (16+1+50+16)*8, FrameLen(50))
	assert.Equal(t, (16+1+127+16)*8, FrameLen(127))
	assert.Equal(t, (16+2+128+16)*8, FrameLen(128))
	assert.Equal(t, (16+3+MaxMessageLen+16)*8, FrameLen(MaxMessageLen))
}

func TestEncodeErrors(t *testing.T) {
	_, err := Encode([]byte("K"), testID, make([]byte, MaxMessageLen+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)

	_, err = Encode(nil, testID, []byte("m"))
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestDecodeMalformed(t *testing.T) {
	valid, err := Encode([]byte("K"), testID, []byte("hello"))
	require.NoError(t, err)

	withLength := func(n uint64) []bool {
		bits := make([]bool, 0, MinFrameBits*2)
		bits = append(bits, valid[:IDLen*8]...)
		var b []byte
		for n >= 0x80 {
			b = append(b, byte(n)|0x80)
			n >>= 7
		}
		b = append(b, byte(n))
		for _, v := range b {
			for i := 7; i >= 0; i-- {
				bits = append(bits, v>>uint(i)&1 == 1)
			}
		}
		return append(bits, make([]bool, MinFrameBits)...)
	}

	test := []struct {
		name string
		bits []bool
	}{
		{"empty", nil},
		{"below minimum frame", valid[:MinFrameBits-1]},
		{"truncated message", valid[:len(valid)-8]},
		{"length overruns bits", withLength(1000)},
		{"length exceeds limit", withLength(MaxMessageLen + 1)},
		{"unterminated varint", append(append(append([]bool{}, valid[:IDLen*8]...), bitsOf(0xFF, 0xFF, 0xFF, 0xFF, 0xFF)...), make([]bool, MinFrameBits)...)},
	}
	for _, tt := range test {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.bits)
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}

	t.Run("short header", func(t *testing.T) {
		_, err := FrameBits(valid[:HeaderBits-1])
		assert.ErrorIs(t, err, ErrMalformedPayload)
		_, err = FrameBits(withLength(MaxMessageLen + 1))
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})
}

func TestVerify(t *testing.T) {
	bits, err := Encode([]byte("K"), testID, []byte("My secret message"))
	require.NoError(t, err)
	p, err := Decode(bits)
	require.NoError(t, err)

	outcome, err := Verify([]byte("K"), p)
	require.NoError(t, err)
	assert.Equal(t, Verified, outcome)

	outcome, err = Verify([]byte("K2"), p)
	require.NoError(t, err)
	assert.Equal(t, TagMismatch, outcome)

	// tampering any covered field breaks the tag
	tampered := *p
	tampered.Message = []byte("My secret messagf")
	outcome, _ = Verify([]byte("K"), &tampered)
	assert.Equal(t, TagMismatch, outcome)

	tampered = *p
	tampered.ContentID[0] ^= 1
	outcome, _ = Verify([]byte("K"), &tampered)
	assert.Equal(t, TagMismatch, outcome)

	outcome, err = Verify([]byte("K"), nil)
	require.NoError(t, err)
	assert.Equal(t, Absent, outcome)

	_, err = Verify(nil, p)
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "absent", Absent.String())
	assert.Equal(t, "tag_mismatch", TagMismatch.String())
	assert.Equal(t, "verified", Verified.String())
	assert.True(t, strings.HasPrefix(Outcome(9).String(), "Outcome("))

	text, err := Verified.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "verified", string(text))
}

func bitsOf(b ...byte) []bool {
	var bits []bool
	for _, v := range b {
		for i := 7; i >= 0; i-- {
			bits = append(bits, v>>uint(i)&1 == 1)
		}
	}
	return bits
}
