package mark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// golayBlock is the code length of one 12-bit data word.
const golayBlock = 23

// flipPerBlock flips one bit in every step-th Golay block, at a different
// offset within each block.
func flipPerBlock(code []bool, step int) {
	for b := 0; b*golayBlock < len(code); b += step {
		i := b*golayBlock + b%golayBlock
		if i < len(code) {
			code[i] = !code[i]
		}
	}
}

func TestLayers(t *testing.T) {
	frame, err := Encode([]byte("K"), testID, []byte("My secret message"))
	require.NoError(t, err)

	for _, layer := range []Layer{WithoutECC(), WithGolay()} {
		t.Run(layer.Name(), func(t *testing.T) {
			code, err := layer.Encode(frame)
			require.NoError(t, err)
			assert.Len(t, code, layer.EncodedLen(len(frame)))
			got, err := layer.Decode(code, len(frame))
			require.NoError(t, err)
			assert.Equal(t, frame, got)

			// an encoded header decodes on its own
			head, err := layer.Decode(code[:layer.EncodedLen(HeaderBits)], HeaderBits)
			require.NoError(t, err)
			assert.Equal(t, frame[:HeaderBits], head)

			// too few code bits
			_, err = layer.Decode(code[:layer.EncodedLen(HeaderBits)-1], HeaderBits)
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}

	t.Run("golay length", func(t *testing.T) {
		g := WithGolay()
		assert.Equal(t, golayBlock, g.EncodedLen(12))
		assert.Equal(t, 2*golayBlock, g.EncodedLen(13))
		// HeaderBits is a whole number of 12-bit words
		assert.Equal(t, HeaderBits/12*golayBlock, g.EncodedLen(HeaderBits))
		assert.Equal(t, 2*g.EncodedLen(HeaderBits), g.EncodedLen(2*HeaderBits))
		for _, size := range []int{1, 11, 12, 13, 100, MinFrameBits} {
			data := make([]bool, size)
			data[0] = true
			code, err := g.Encode(data)
			require.NoError(t, err)
			assert.Len(t, code, g.EncodedLen(size))
		}
	})

	t.Run("golay corrects flipped bits", func(t *testing.T) {
		g := WithGolay()
		code, err := g.Encode(frame)
		require.NoError(t, err)
		flipPerBlock(code, 1)
		got, err := g.Decode(code, len(frame))
		require.NoError(t, err)
		assert.Equal(t, frame, got)
	})

	t.Run("by name", func(t *testing.T) {
		for _, name := range []string{"", "none", "golay"} {
			l, ok := LayerByName(name)
			require.True(t, ok)
			assert.NotNil(t, l)
		}
		_, ok := LayerByName("reed-solomon")
		assert.False(t, ok)
	})
}
