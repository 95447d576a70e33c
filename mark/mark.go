package mark

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/yyyoichi/cipherseal/internal/bitconv"
	"github.com/yyyoichi/cipherseal/internal/keygen"
)

const (
	// IDLen is the byte length of a content id.
	IDLen = 16
	// TagLen is the byte length of the integrity tag.
	TagLen = 16
	// MaxMessageLen is the largest message a frame can carry.
	MaxMessageLen = 1<<16 - 1

	maxVarintLen = 5

	// HeaderBits is the prefix length FrameBits needs to learn the frame size.
	// It covers the content id and the longest accepted length prefix.
	HeaderBits = (IDLen + maxVarintLen) * 8
	// MinFrameBits is the bit length of a frame with an empty message.
	MinFrameBits = (IDLen + 1 + TagLen) * 8
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMessageTooLong   = errors.New("message too long")
	ErrEmptyKey         = keygen.ErrEmptyKey
)

// Payload is the decoded content of a frame.
type Payload struct {
	ContentID uuid.UUID
	Message   []byte
	Tag       [TagLen]byte
}

// FrameLen returns the number of bits of a frame carrying a message of
// messageLen bytes.
func FrameLen(messageLen int) int {
	return (IDLen + uvarintLen(uint64(messageLen)) + messageLen + TagLen) * 8
}

// Encode serializes a frame for contentID and message, signed with key.
//
//	[content id 16B][uvarint len][message][tag 16B]
func Encode(key []byte, contentID uuid.UUID, message []byte) ([]bool, error) {
	if len(message) > MaxMessageLen {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLong, len(message), MaxMessageLen)
	}
	tag, err := computeTag(key, contentID, message)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, FrameLen(len(message))/8)
	buf = append(buf, contentID[:]...)
	buf = binary.AppendUvarint(buf, uint64(len(message)))
	buf = append(buf, message...)
	buf = append(buf, tag[:]...)
	return bitconv.BytesToBools(buf), nil
}

// FrameBits reads the header from prefix and returns the bit length of the
// whole frame. prefix needs at least HeaderBits bits; every frame is longer
// than that.
func FrameBits(prefix []bool) (int, error) {
	if len(prefix) < HeaderBits {
		return 0, fmt.Errorf("%w: header needs %d bits, got %d", ErrMalformedPayload, HeaderBits, len(prefix))
	}
	n, _, err := readLength(bitconv.BoolsToBytes(prefix[:HeaderBits]))
	if err != nil {
		return 0, err
	}
	return FrameLen(n), nil
}

// Decode parses a frame. Bits after the frame are ignored. Decode never
// checks the tag; see Verify.
func Decode(bits []bool) (*Payload, error) {
	if len(bits) < MinFrameBits {
		return nil, fmt.Errorf("%w: %d bits, need at least %d", ErrMalformedPayload, len(bits), MinFrameBits)
	}
	buf := bitconv.BoolsToBytes(bits[:len(bits)/8*8])
	n, off, err := readLength(buf)
	if err != nil {
		return nil, err
	}
	if need := off + n + TagLen; need > len(buf) {
		return nil, fmt.Errorf("%w: declared message of %d bytes overruns %d available bits", ErrMalformedPayload, n, len(bits))
	}
	p := &Payload{
		Message: make([]byte, n),
	}
	copy(p.ContentID[:], buf[:IDLen])
	copy(p.Message, buf[off:off+n])
	copy(p.Tag[:], buf[off+n:off+n+TagLen])
	return p, nil
}

// readLength returns the declared message length and the offset of the
// message within buf.
func readLength(buf []byte) (int, int, error) {
	if len(buf) <= IDLen {
		return 0, 0, fmt.Errorf("%w: missing length prefix", ErrMalformedPayload)
	}
	field := buf[IDLen:min(len(buf), IDLen+maxVarintLen)]
	v, k := binary.Uvarint(field)
	if k <= 0 {
		return 0, 0, fmt.Errorf("%w: invalid length prefix", ErrMalformedPayload)
	}
	if v > MaxMessageLen {
		return 0, 0, fmt.Errorf("%w: declared length %d exceeds %d", ErrMalformedPayload, v, MaxMessageLen)
	}
	return int(v), IDLen + k, nil
}

func computeTag(key []byte, contentID uuid.UUID, message []byte) ([TagLen]byte, error) {
	var tag [TagLen]byte
	tagKey, err := keygen.TagKey(key)
	if err != nil {
		return tag, err
	}
	h := hmac.New(sha256.New, tagKey)
	h.Write(contentID[:])
	h.Write(message)
	copy(tag[:], h.Sum(nil))
	return tag, nil
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
