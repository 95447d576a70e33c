package mark

import (
	"crypto/hmac"
	"fmt"
)

// Outcome is the result of checking a carrier for a watermark.
type Outcome int

const (
	// Absent means no watermark was found.
	Absent Outcome = iota
	// TagMismatch means a watermark is present but does not verify under the key.
	TagMismatch
	// Verified means the watermark was produced with the key.
	Verified
)

func (o Outcome) String() string {
	switch o {
	case Absent:
		return "absent"
	case TagMismatch:
		return "tag_mismatch"
	case Verified:
		return "verified"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Verify recomputes the tag of p under key. A nil payload is Absent.
func Verify(key []byte, p *Payload) (Outcome, error) {
	if p == nil {
		return Absent, nil
	}
	tag, err := computeTag(key, p.ContentID, p.Message)
	if err != nil {
		return Absent, err
	}
	if !hmac.Equal(tag[:], p.Tag[:]) {
		return TagMismatch, nil
	}
	return Verified, nil
}
