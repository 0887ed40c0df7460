// Package checksum provides the keyed integrity checksums that authenticate
// fortress snapshots. The primitive is a keyed FNV-1a fold over 64-bit words;
// it detects accidental corruption and makes blind forgery inconvenient, but
// it is not a cryptographic MAC.
package checksum

const (
	fnvOffset = 0xcbf29ce484222325
	fnvPrime  = 0x100000001B3
)

// fold runs the keyed byte fold over a sequence of 64-bit values. Each value
// contributes its eight bytes low-to-high.
func fold(acc uint64, v uint64) uint64 {
	for b := 0; b < 8; b++ {
		acc ^= v & 0xff
		acc *= fnvPrime
		v >>= 8
	}
	return acc
}

// Word computes the keyed checksum of a single state word.
func Word(word, key uint64) uint64 {
	return fold(fnvOffset^key, word)
}

// Full computes the keyed checksum of an entire state: all words in index
// order followed by the absorbed-byte count, as one contiguous sequence.
func Full(words []uint64, totalLen, key uint64) uint64 {
	acc := uint64(fnvOffset ^ key)
	for _, w := range words {
		acc = fold(acc, w)
	}
	return fold(acc, totalLen)
}
