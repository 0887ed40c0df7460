// Command fortress-torture drives many independent accumulators through
// absorb/corrupt/recover cycles in parallel and reports how the recovery
// tiers held up. Useful for soak-testing the self-heal layer.
package main

import (
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/fortresskit/fortress/pkg/logging"
	"github.com/fortresskit/fortress/pkg/selfheal"
	"github.com/fortresskit/fortress/pkg/snapshot"
	"github.com/fortresskit/fortress/pkg/sponge"
	workerpool "github.com/fortresskit/fortress/pkg/workerPool"
)

func main() {
	instances := flag.Int("instances", 128, "number of independent accumulators")
	cycles := flag.Int("cycles", 50, "corruption cycles per accumulator")
	workers := flag.Int("workers", 0, "worker count (0 = per-CPU default)")
	flag.Parse()

	log := logging.New(slog.LevelInfo, false)
	start := time.Now()

	pool := workerpool.NewPool(workerpool.Config{
		WorkerCount:  *workers,
		GlobalBuffer: *instances,
	})
	defer pool.Close()

	room := pool.CreateRoom(*instances)
	for i := 0; i < *instances; i++ {
		seed := int64(i)
		n := *cycles
		room.Submit(func() workerpool.Result { return torture(seed, n) })
	}

	var totals selfheal.Counters
	failed := 0
	for _, r := range room.Collect() {
		if r.Err != nil || !r.Recovered {
			failed++
		}
		totals.PartialRepairs += r.Counters.PartialRepairs
		totals.FullReverts += r.Counters.FullReverts
		totals.ForcedReinits += r.Counters.ForcedReinits
	}

	log.Info("torture run complete",
		"instances", *instances,
		"cycles", *cycles,
		"partialRepairs", totals.PartialRepairs,
		"fullReverts", totals.FullReverts,
		"forcedReinits", totals.ForcedReinits,
		"failed", failed,
		"elapsed", time.Since(start))

	if failed > 0 {
		os.Exit(1)
	}
}

// torture runs one accumulator: absorb random data, snapshot, corrupt random
// words (sometimes several at once, sometimes the history too), recover, and
// confirm the digest survived.
func torture(seed int64, cycles int) workerpool.Result {
	rng := rand.New(rand.NewSource(seed))

	state := sponge.New()
	auth := snapshot.NewAuthenticator()
	heal, err := selfheal.Init(auth, state, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	if err != nil {
		return workerpool.Result{Err: err}
	}

	recovered := true
	for c := 0; c < cycles; c++ {
		buf := make([]byte, 1+rng.Intn(4096))
		rng.Read(buf)
		state.Absorb(buf)
		if err := heal.Save(state); err != nil {
			return workerpool.Result{Err: err}
		}
		want := state.Squeeze(64)

		// Mostly single-word hits, healed by partial repair. Every tenth
		// cycle also mangles the shadow so recovery has to fall through
		// to a full revert against the ring.
		hits := 1
		if rng.Intn(10) == 0 {
			hits = 2 + rng.Intn(6)
			w := rng.Intn(sponge.StateWords)
			heal.Shadow.Words[w] ^= 0xbad
			heal.Shadow.WordChecks[w] ^= 0xbad
		}
		for h := 0; h < hits; h++ {
			state.Words[rng.Intn(sponge.StateWords)] ^= 1 << uint(rng.Intn(64))
		}

		if heal.Detect(state) {
			heal.Recover(state)
		}
		got := state.Squeeze(64)
		for i := range got {
			if got[i] != want[i] {
				recovered = false
				break
			}
		}
	}

	return workerpool.Result{
		Digest:    state.Squeeze(64),
		Recovered: recovered,
		Counters:  heal.Counters,
	}
}
