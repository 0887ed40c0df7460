package sponge

import "math/bits"

// Rounds is the fixed permutation round count.
const Rounds = 24

// Keccak round-constant table. Only used as stirring constants here; the
// permutation itself is not Keccak.
var roundConstants = [Rounds]uint64{
	0x0000000000000001, 0x0000000000008082,
	0x800000000000808a, 0x8000000080008000,
	0x000000000000808b, 0x0000000080000001,
	0x8000000080008081, 0x8000000000008009,
	0x000000000000008a, 0x0000000000000088,
	0x0000000080008009, 0x000000008000000a,
	0x000000008000808b, 0x800000000000008b,
	0x8000000000008089, 0x8000000000008003,
	0x8000000000008002, 0x8000000000000080,
	0x000000000000800a, 0x800000008000000a,
	0x8000000080008081, 0x8000000000008080,
	0x0000000080000001, 0x8000000080008008,
}

var mixLanes func(w *[StateWords]uint64, round int) = mixLanesGeneric

// UseUnrolledMix switches the cross-lane pass between the generic loop and
// an unrolled variant with byte-identical output. Call it before any
// permutation runs; it is not safe to flip concurrently with Permute.
func UseUnrolledMix(enabled bool) {
	if enabled {
		mixLanes = mixLanesUnrolled
	} else {
		mixLanes = mixLanesGeneric
	}
}

// Permute applies the full 24-round mixing permutation in place. It is a
// pure, keyless function; identical input words always yield identical
// output words.
//
// Each round: one word takes a round constant, adjacent pairs are
// rotate-XOR coupled, and a final pass XORs every word with a rotated copy
// of the word five positions ahead. All rotation amounts stay in [1,63].
func (s *State) Permute() {
	w := &s.Words
	for r := 0; r < Rounds; r++ {
		w[r%StateWords] ^= roundConstants[r]

		for i := 0; i < StateWords; i += 2 {
			a := w[i]
			b := w[i+1]
			a = bits.RotateLeft64(a^b, (i+r)%63+1)
			b = bits.RotateLeft64(b^a, (i*3+r)%59+1)
			w[i] = a
			w[i+1] = b
		}

		mixLanes(w, r)
	}
}

// mixLanesGeneric is the reference cross-lane pass. The updates run in
// index order and read the live array, so later lanes see earlier results;
// the unrolled variant must preserve that order exactly.
func mixLanesGeneric(w *[StateWords]uint64, round int) {
	for i := 0; i < StateWords; i++ {
		w[i] ^= bits.RotateLeft64(w[(i+5)%StateWords], (i+round)%7+1)
	}
}

// mixLanesUnrolled performs the same sequential updates four lanes per loop
// iteration.
func mixLanesUnrolled(w *[StateWords]uint64, round int) {
	for i := 0; i < StateWords; i += 4 {
		w[i] ^= bits.RotateLeft64(w[(i+5)%StateWords], (i+round)%7+1)
		w[i+1] ^= bits.RotateLeft64(w[(i+6)%StateWords], (i+1+round)%7+1)
		w[i+2] ^= bits.RotateLeft64(w[(i+7)%StateWords], (i+2+round)%7+1)
		w[i+3] ^= bits.RotateLeft64(w[(i+8)%StateWords], (i+3+round)%7+1)
	}
}
