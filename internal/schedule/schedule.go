package schedule

import (
	"errors"
	"fmt"
	"math/bits"
	"math/rand/v2"

	"github.com/yyyoichi/cipherseal/internal/keygen"
)

var (
	ErrInsufficientCapacity = errors.New("insufficient carrier capacity")
)

// Sequence draws distinct slot indices from [0, capacity) in a keyed
// pseudorandom order. It is a lazily evaluated Fisher-Yates shuffle: only
// the swapped entries are stored, so memory follows the number of draws
// rather than the capacity.
//
// The i-th drawn slot depends only on the seed, the capacity and the draws
// before it, therefore a shorter sequence is always a prefix of a longer one
// from the same seed.
type Sequence struct {
	capacity int
	next     int
	swaps    map[int]int
	src      *rand.ChaCha8
}

// New returns a sequence over capacity slots seeded with seed.
func New(seed [32]byte, capacity int) *Sequence {
	if capacity < 0 {
		capacity = 0
	}
	return &Sequence{
		capacity: capacity,
		swaps:    make(map[int]int),
		src:      rand.NewChaCha8(seed),
	}
}

// Capacity returns the size of the slot pool.
func (s *Sequence) Capacity() int { return s.capacity }

// Remaining returns the number of slots not drawn yet.
func (s *Sequence) Remaining() int { return s.capacity - s.next }

// Reseed keeps the drawn slots excluded and continues with a new seed.
func (s *Sequence) Reseed(seed [32]byte) {
	s.src = rand.NewChaCha8(seed)
}

// Next draws one slot.
func (s *Sequence) Next() (int, error) {
	if s.next >= s.capacity {
		return 0, fmt.Errorf("%w: all %d slots used", ErrInsufficientCapacity, s.capacity)
	}
	i := s.next
	j := i + int(s.uintn(uint64(s.capacity-i)))
	picked := s.at(j)
	s.swaps[j] = s.at(i)
	// position i is never read again
	delete(s.swaps, i)
	s.next++
	return picked, nil
}

// Take draws count slots.
func (s *Sequence) Take(count int) ([]int, error) {
	if count > s.Remaining() {
		return nil, fmt.Errorf("%w: need %d slots, %d available", ErrInsufficientCapacity, count, s.Remaining())
	}
	slots := make([]int, max(count, 0))
	for i := range slots {
		slots[i], _ = s.Next()
	}
	return slots, nil
}

func (s *Sequence) at(k int) int {
	if v, ok := s.swaps[k]; ok {
		return v
	}
	return k
}

// uintn returns a uniform value in [0, n) using Lemire's multiply and
// reject method over the raw ChaCha8 stream. It is implemented here so that
// slot sequences stay stable across Go releases.
func (s *Sequence) uintn(n uint64) uint64 {
	hi, lo := bits.Mul64(s.src.Uint64(), n)
	if lo < n {
		threshold := -n % n
		for lo < threshold {
			hi, lo = bits.Mul64(s.src.Uint64(), n)
		}
	}
	return hi
}

// Positions returns count distinct slot indices in [0, capacity), derived
// from the secret key and the carrier salt.
func Positions(key []byte, salt keygen.Salt, capacity, count int) ([]int, error) {
	if count > capacity {
		return nil, fmt.Errorf("%w: need %d slots, carrier has %d", ErrInsufficientCapacity, count, capacity)
	}
	seed, err := keygen.ScheduleSeed(key, salt)
	if err != nil {
		return nil, err
	}
	return New(seed, capacity).Take(count)
}
