// Package sponge implements the fortress accumulator: a 2048-bit word state
// absorbed and squeezed through a fixed 24-round mixing permutation.
//
// The construction is a plain sponge. Input is XORed into the rate portion of
// the state in 128-byte blocks with a permutation between blocks; output is
// read back out of the rate portion the same way. It is built for accidental
// corruption detection together with the selfheal package, not as a
// standards-compliant cryptographic hash.
package sponge

import "encoding/binary"

const (
	// StateWords is the number of 64-bit words in the accumulator state.
	StateWords = 32

	// RateWords is the number of state words exposed to input and output.
	// The remaining words form the sponge capacity.
	RateWords = 16

	// RateBytes is the rate block size in bytes.
	RateBytes = RateWords * 8
)

// State is the full accumulator: 32 words plus a running count of absorbed
// bytes. It is a value type; assignment produces an independent copy, which
// the snapshot layer relies on.
type State struct {
	Words         [StateWords]uint64
	AbsorbedBytes uint64
}

// New returns a freshly initialized accumulator.
func New() *State {
	s := &State{}
	s.Init()
	return s
}

// Init resets the state to its fixed starting point: all words zero except
// the first four, which carry the SHA-512 IV head words as
// nothing-up-my-sleeve constants.
func (s *State) Init() {
	s.Words = [StateWords]uint64{}
	s.Words[0] = 0x6A09E667F3BCC908
	s.Words[1] = 0xBB67AE8584CAA73B
	s.Words[2] = 0x3C6EF372FE94F82B
	s.Words[3] = 0xA54FF53A5F1D36F1
	s.AbsorbedBytes = 0
}

// Absorb XORs data into the rate portion of the state, permuting after every
// full 128-byte block. A trailing partial block is XORed in at rate offset
// zero and left pending; it is flushed by the unconditional permutation in
// Squeeze. Because of that, two byte streams of the same content split at
// different non-block-aligned boundaries are not guaranteed to squeeze to the
// same digest. This is a documented limitation of the construction.
func (s *State) Absorb(data []byte) {
	s.AbsorbedBytes += uint64(len(data))

	for len(data) > 0 {
		n := len(data)
		if n > RateBytes {
			n = RateBytes
		}
		s.xorIntoRate(data[:n])
		data = data[n:]

		if n == RateBytes {
			s.Permute()
		}
		// partial block: leave it pending for the next full block or
		// for the squeeze-time permutation
	}
}

// xorIntoRate folds up to RateBytes of input into the rate words, always
// starting at rate offset zero, little-endian lane order.
func (s *State) xorIntoRate(b []byte) {
	i := 0
	for ; i+8 <= len(b); i += 8 {
		s.Words[i/8] ^= binary.LittleEndian.Uint64(b[i:])
	}
	for ; i < len(b); i++ {
		s.Words[i/8] ^= uint64(b[i]) << ((i % 8) * 8)
	}
}

// Squeeze produces outLen bytes of digest output. It never mutates s: all
// work happens on a copy. One permutation is always applied first, flushing
// any pending partial block, then rate-sized blocks are copied out with a
// permutation between successive blocks.
func (s *State) Squeeze(outLen int) []byte {
	c := *s
	c.Permute()

	out := make([]byte, 0, outLen)
	var block [RateBytes]byte
	for outLen > 0 {
		for w := 0; w < RateWords; w++ {
			binary.LittleEndian.PutUint64(block[w*8:], c.Words[w])
		}
		n := outLen
		if n > RateBytes {
			n = RateBytes
		}
		out = append(out, block[:n]...)
		outLen -= n
		if outLen > 0 {
			c.Permute()
		}
	}
	return out
}
