package selfheal

import (
	"io"
	"log/slog"
	"testing"

	"github.com/fortresskit/fortress/pkg/checksum"
	"github.com/fortresskit/fortress/pkg/snapshot"
	"github.com/fortresskit/fortress/pkg/sponge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestContext(t *testing.T, s *sponge.State) *Context {
	t.Helper()
	auth := &snapshot.Authenticator{Keys: &checksum.SequenceSource{Next: 1000}}
	ctx, err := Init(auth, s, quietLogger())
	require.NoError(t, err)
	return ctx
}

func TestDetectHealthyFastPath(t *testing.T) {
	s := sponge.New()
	s.Absorb([]byte("healthy"))
	ctx := newTestContext(t, s)

	assert.False(t, ctx.Detect(s))
	assert.Zero(t, ctx.Counters.ConsecutiveAnomalies)
}

func TestDetectSingleBitFlip(t *testing.T) {
	s := sponge.New()
	s.Absorb([]byte("tamper detection"))
	ctx := newTestContext(t, s)

	for _, word := range []int{0, 15, 16, 31} {
		s.Words[word] ^= 1 << uint(word*2)
		assert.True(t, ctx.Detect(s), "flip in word %d must be detected", word)
		s.Words[word] ^= 1 << uint(word*2)
		assert.False(t, ctx.Detect(s))
	}
}

func TestDetectCounterSanityBound(t *testing.T) {
	s := sponge.New()
	ctx := newTestContext(t, s)

	s.AbsorbedBytes = MaxAbsorbedBytes + 1
	assert.True(t, ctx.Detect(s))
}

func TestDetectMatchesOlderRingSnapshot(t *testing.T) {
	s := sponge.New()
	s.Absorb([]byte("generation A"))
	ctx := newTestContext(t, s)

	old := *s

	s.Absorb([]byte("generation B"))
	require.NoError(t, ctx.Save(s))

	// The old state no longer matches the shadow, but it still matches a
	// historical ring slot, which counts as healthy.
	assert.False(t, ctx.Detect(&old))
}

func TestPartialRepair(t *testing.T) {
	s := sponge.New()
	s.Absorb([]byte("partial repair target"))
	ctx := newTestContext(t, s)
	wantWords := ctx.Shadow.Words

	s.Words[4] ^= 0xDEADBEEFCAFEBABE
	s.Words[27] ^= 1

	require.True(t, ctx.Detect(s))
	assert.True(t, ctx.Recover(s))

	assert.Equal(t, uint64(1), ctx.Counters.PartialRepairs)
	assert.Zero(t, ctx.Counters.FullReverts)
	assert.Zero(t, ctx.Counters.ConsecutiveAnomalies)
	assert.Equal(t, wantWords, s.Words)
	assert.False(t, ctx.Detect(s))
}

func TestPartialRepairRestoresDigest(t *testing.T) {
	s := sponge.New()
	s.Absorb([]byte("digest should survive healing"))
	ctx := newTestContext(t, s)
	want := s.Squeeze(64)

	s.Words[9] ^= 0xff00ff00ff00ff00
	require.True(t, ctx.Recover(s))

	assert.Equal(t, want, s.Squeeze(64))
}

func TestEscalationToFullRevert(t *testing.T) {
	s := sponge.New()
	s.Absorb([]byte("generation A"))
	ctx := newTestContext(t, s)
	wantWords := s.Words
	wantAbsorbed := s.AbsorbedBytes

	s.Absorb([]byte("generation B"))
	require.NoError(t, ctx.Save(s))

	// Corrupt the live state, the shadow, and the most recent ring slot.
	// Only the older generation-A snapshot stays intact, so recovery must
	// fall through partial repair and revert to it.
	s.Words[2] ^= 0x1234
	ctx.Shadow.Words[5] ^= 0xbad
	ctx.Shadow.WordChecks[11] ^= 0xbad
	ctx.Ring.Latest().Words[5] ^= 0xbad
	ctx.Ring.Latest().WordChecks[11] ^= 0xbad

	require.True(t, ctx.Detect(s))
	assert.True(t, ctx.Recover(s))

	assert.Equal(t, uint64(1), ctx.Counters.FullReverts)
	assert.Zero(t, ctx.Counters.PartialRepairs)
	assert.Equal(t, wantWords, s.Words)
	assert.Equal(t, wantAbsorbed, s.AbsorbedBytes)
	assert.False(t, ctx.Detect(s))
}

func TestEscalationToForcedReinit(t *testing.T) {
	s := sponge.New()
	s.Absorb([]byte("doomed input"))
	ctx := newTestContext(t, s)
	ctx.Counters.PartialRepairs = 3
	ctx.Counters.FullReverts = 2

	// Corrupt everything: live state, shadow, and every ring slot, checks
	// included, so no tier can find a trustworthy reference.
	s.Words[0] ^= 1
	ctx.Shadow.Words[1] ^= 1
	ctx.Shadow.WordChecks[1] ^= 1
	for i := range ctx.Ring.Slots {
		ctx.Ring.Slots[i].Words[1] ^= 1
		ctx.Ring.Slots[i].WordChecks[1] ^= 1
	}

	require.True(t, ctx.Detect(s))
	assert.False(t, ctx.Recover(s), "unrecoverable history must degrade to reinit")

	fresh := sponge.New()
	assert.Equal(t, fresh.Words, s.Words)
	assert.Zero(t, s.AbsorbedBytes)

	assert.Equal(t, uint64(1), ctx.Counters.ForcedReinits)
	assert.Equal(t, uint64(3), ctx.Counters.PartialRepairs, "repair totals survive reinit")
	assert.Equal(t, uint64(2), ctx.Counters.FullReverts, "revert totals survive reinit")
	assert.Zero(t, ctx.Counters.ConsecutiveAnomalies)

	// The rebuilt history covers the fresh state.
	assert.False(t, ctx.Detect(s))
}

func TestRecoverResnapshotsHealedState(t *testing.T) {
	s := sponge.New()
	s.Absorb([]byte("resnapshot"))
	ctx := newTestContext(t, s)

	s.Words[30] ^= 1 << 63
	require.True(t, ctx.Recover(s))

	// The healed state became the new shadow.
	assert.Equal(t, s.Words, ctx.Shadow.Words)
	assert.Equal(t, s.AbsorbedBytes, ctx.Shadow.AbsorbedBytes)
}

func TestConsecutiveAnomalyCounter(t *testing.T) {
	s := sponge.New()
	ctx := newTestContext(t, s)

	// Every recovery outcome resets the consecutive counter, so after a
	// heal it must read zero again.
	s.Words[3] ^= 1
	require.True(t, ctx.Recover(s))
	assert.Zero(t, ctx.Counters.ConsecutiveAnomalies)

	assert.False(t, ctx.Detect(s))
	assert.Zero(t, ctx.Counters.ConsecutiveAnomalies)
}

func TestInitPopulatesSlotZeroOnly(t *testing.T) {
	s := sponge.New()
	ctx := newTestContext(t, s)

	assert.False(t, ctx.Ring.Slots[0].Empty())
	for i := 1; i < snapshot.RingSize; i++ {
		assert.True(t, ctx.Ring.Slots[i].Empty(), "slot %d must start sentinel", i)
	}
	assert.Equal(t, ctx.Ring.Slots[0].Key, ctx.Shadow.Key)
}
