package checksum

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// KeySource produces the ephemeral keys that key snapshot checksums. A key of
// zero is reserved as the "empty snapshot slot" sentinel, so implementations
// must never return zero.
type KeySource interface {
	Key() (uint64, error)
}

// CryptoSource draws keys from crypto/rand. A zero draw is discarded and
// redrawn so the sentinel value can never key a real snapshot.
type CryptoSource struct{}

func (CryptoSource) Key() (uint64, error) {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("read random key: %w", err)
		}
		k := binary.LittleEndian.Uint64(buf[:])
		if k != 0 {
			return k, nil
		}
	}
}

// SequenceSource hands out deterministic keys for tests. It starts at Next
// and increments, skipping zero on wraparound.
type SequenceSource struct {
	Next uint64
}

func (s *SequenceSource) Key() (uint64, error) {
	if s.Next == 0 {
		s.Next = 1
	}
	k := s.Next
	s.Next++
	return k, nil
}
