package fortress

import (
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/fortresskit/fortress/internal/testutil"
	"github.com/fortresskit/fortress/pkg/checksum"
	workerpool "github.com/fortresskit/fortress/pkg/workerPool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs many independent accumulators through absorb/corrupt/repair cycles in
// parallel. Instances share nothing, so every one of them must heal on its
// own and reproduce its pre-corruption digest.
func TestParallelCorruptionTorture(t *testing.T) {
	testutil.RequireTorture(t)

	const instances = 64
	const cycles = 20

	pool := workerpool.NewPool(workerpool.Config{WorkerCount: 8, GlobalBuffer: instances})
	defer pool.Close()

	room := pool.CreateRoom(instances)
	for i := 0; i < instances; i++ {
		seed := int64(i)
		room.Submit(func() workerpool.Result {
			rng := rand.New(rand.NewSource(seed))
			f, err := New(Config{
				Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
				Keys:   &checksum.SequenceSource{Next: uint64(seed*1000 + 1)},
			})
			if err != nil {
				return workerpool.Result{Err: err}
			}

			recovered := true
			for c := 0; c < cycles; c++ {
				buf := make([]byte, 1+rng.Intn(512))
				rng.Read(buf)
				if err := f.Absorb(buf); err != nil {
					return workerpool.Result{Err: err}
				}
				want := f.Sum(64)

				f.state.Words[rng.Intn(32)] ^= 1 << uint(rng.Intn(64))
				if !f.Repair() {
					recovered = false
					break
				}
				if string(f.Sum(64)) != string(want) {
					recovered = false
					break
				}
			}
			return workerpool.Result{
				Digest:    f.Sum(64),
				Recovered: recovered,
				Counters:  f.Stats(),
			}
		})
	}

	results := room.Collect()
	require.Len(t, results, instances)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.True(t, r.Recovered, "every instance must heal every cycle")
		assert.Zero(t, r.Counters.ForcedReinits)
	}
}
