// Package snapshot captures authenticated copies of the fortress accumulator
// and keeps a bounded ring of them for the self-heal layer. Every snapshot is
// checksummed under its own ephemeral key; a key of zero marks a slot that
// was never populated.
package snapshot

import (
	"fmt"

	"github.com/fortresskit/fortress/pkg/checksum"
	"github.com/fortresskit/fortress/pkg/sponge"
)

// Snapshot is an immutable-after-creation authenticated copy of the
// accumulator: the words, the absorbed-byte count at capture time, one keyed
// checksum per word, one keyed checksum over the whole (words, count) pair,
// and the ephemeral key the checksums were computed under.
type Snapshot struct {
	Words         [sponge.StateWords]uint64
	AbsorbedBytes uint64
	WordChecks    [sponge.StateWords]uint64
	FullCheck     uint64
	Key           uint64
}

// Empty reports whether the snapshot is the never-populated sentinel.
func (sn *Snapshot) Empty() bool {
	return sn.Key == 0
}

// Clear resets the snapshot to the empty sentinel.
func (sn *Snapshot) Clear() {
	*sn = Snapshot{}
}

// Authenticator computes and verifies snapshot checksums. Keys supplies a
// fresh ephemeral key per capture; inject a deterministic source in tests.
type Authenticator struct {
	Keys checksum.KeySource
}

// NewAuthenticator returns an authenticator drawing keys from crypto/rand.
func NewAuthenticator() *Authenticator {
	return &Authenticator{Keys: checksum.CryptoSource{}}
}

// Capture copies the state and checksums it under a fresh ephemeral key.
func (a *Authenticator) Capture(s *sponge.State) (Snapshot, error) {
	key, err := a.Keys.Key()
	if err != nil {
		return Snapshot{}, fmt.Errorf("capture snapshot: %w", err)
	}

	sn := Snapshot{
		Words:         s.Words,
		AbsorbedBytes: s.AbsorbedBytes,
		Key:           key,
	}
	for i, w := range sn.Words {
		sn.WordChecks[i] = checksum.Word(w, key)
	}
	sn.FullCheck = checksum.Full(sn.Words[:], sn.AbsorbedBytes, key)
	return sn, nil
}

// Verify recomputes every per-word checksum and the full checksum for the
// given live state under the snapshot's stored key. All 33 results must
// match; a single mismatch fails verification.
func (a *Authenticator) Verify(s *sponge.State, sn *Snapshot) bool {
	return verifyWords(&s.Words, s.AbsorbedBytes, sn)
}

// SelfVerify checks a snapshot against its own stored words and count. It
// guards against reverting to a snapshot that is itself corrupted.
func (a *Authenticator) SelfVerify(sn *Snapshot) bool {
	if sn.Empty() {
		return false
	}
	return verifyWords(&sn.Words, sn.AbsorbedBytes, sn)
}

func verifyWords(words *[sponge.StateWords]uint64, absorbed uint64, sn *Snapshot) bool {
	for i, w := range words {
		if checksum.Word(w, sn.Key) != sn.WordChecks[i] {
			return false
		}
	}
	return checksum.Full(words[:], absorbed, sn.Key) == sn.FullCheck
}
