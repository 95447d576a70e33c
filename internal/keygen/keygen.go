package keygen

import (
	"crypto/hkdf"
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

const (
	tagInfo      = "cipherseal-v1-tag-key"
	scheduleInfo = "cipherseal-v1-schedule-seed"
	keyLen       = 32
)

var ErrEmptyKey = errors.New("secret key is empty")

// Salt identifies a carrier geometry. Two carriers with the same salt share
// the same slot sequence under the same key.
type Salt []byte

// ImageSalt encodes width, height and usable channel count.
func ImageSalt(width, height, channels int) Salt {
	s := make([]byte, 0, 1+3*binary.MaxVarintLen64)
	s = append(s, 'i')
	s = binary.AppendUvarint(s, uint64(width))
	s = binary.AppendUvarint(s, uint64(height))
	s = binary.AppendUvarint(s, uint64(channels))
	return s
}

// TextSalt encodes the codepoint count of the unmarked text.
func TextSalt(codepoints int) Salt {
	s := make([]byte, 0, 1+binary.MaxVarintLen64)
	s = append(s, 't')
	s = binary.AppendUvarint(s, uint64(codepoints))
	return s
}

// TagKey derives the key used for integrity tags.
func TagKey(secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptyKey
	}
	return hkdf.Key(sha256.New, secret, nil, tagInfo, keyLen)
}

// ScheduleSeed derives the scheduler seed for one carrier geometry.
func ScheduleSeed(secret []byte, salt Salt) ([32]byte, error) {
	var seed [32]byte
	if len(secret) == 0 {
		return seed, ErrEmptyKey
	}
	k, err := hkdf.Key(sha256.New, secret, salt, scheduleInfo, keyLen)
	if err != nil {
		return seed, err
	}
	copy(seed[:], k)
	return seed, nil
}
