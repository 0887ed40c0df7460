package archive

import (
	"bytes"
	"testing"

	"github.com/fortresskit/fortress/pkg/checksum"
	"github.com/fortresskit/fortress/pkg/selfheal"
	"github.com/fortresskit/fortress/pkg/snapshot"
	"github.com/fortresskit/fortress/pkg/sponge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildHistory(t *testing.T) (*selfheal.Context, *sponge.State) {
	t.Helper()
	s := sponge.New()
	s.Absorb([]byte("history to archive"))
	auth := &snapshot.Authenticator{Keys: &checksum.SequenceSource{Next: 7}}
	ctx, err := selfheal.Init(auth, s, nil)
	require.NoError(t, err)
	s.Absorb([]byte("second generation"))
	require.NoError(t, ctx.Save(s))
	return ctx, s
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx, s := buildHistory(t)

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, ctx.Ring, ctx.Shadow))

	ring, shadow, err := Import(&buf)
	require.NoError(t, err)

	assert.Equal(t, ctx.Ring, ring)
	assert.Equal(t, ctx.Shadow, shadow)

	// The imported history still covers the live state.
	restored := selfheal.Restore(nil, ring, shadow, nil)
	assert.False(t, restored.Detect(s))
}

func TestImportRejectsCorruptShadow(t *testing.T) {
	ctx, _ := buildHistory(t)
	ctx.Shadow.Words[0] ^= 1

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, ctx.Ring, ctx.Shadow))

	_, _, err := Import(&buf)
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestImportRejectsCorruptRingSlot(t *testing.T) {
	ctx, _ := buildHistory(t)
	ctx.Ring.Slots[0].Words[3] ^= 1

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, ctx.Ring, ctx.Shadow))

	_, _, err := Import(&buf)
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestImportGarbage(t *testing.T) {
	_, _, err := Import(bytes.NewReader([]byte("not an archive at all")))
	assert.Error(t, err)
}
