// Package selfheal layers corruption detection and tiered recovery over a
// live fortress accumulator. It keeps a ring of authenticated snapshots plus
// a shadow copy of the most recent one, and escalates from word-granular
// repair through full revert to forced re-initialization.
//
// Nothing in this package returns a hard failure to the caller: every
// detect/recover cycle terminates with the accumulator in a defined state,
// and degraded outcomes are reported through the boolean results and the
// counters.
package selfheal

import (
	"log/slog"

	"github.com/fortresskit/fortress/pkg/checksum"
	"github.com/fortresskit/fortress/pkg/snapshot"
	"github.com/fortresskit/fortress/pkg/sponge"
)

// MaxAbsorbedBytes is the sanity bound on the absorbed-byte counter.
// A counter beyond it is treated as corruption no matter what the
// checksums say.
const MaxAbsorbedBytes = 1 << 48

// Counters tracks recovery activity for observability. PartialRepairs,
// FullReverts and ForcedReinits only ever grow; ConsecutiveAnomalies resets
// whenever detection passes or a repair succeeds.
type Counters struct {
	PartialRepairs       uint64
	FullReverts          uint64
	ForcedReinits        uint64
	ConsecutiveAnomalies uint64
}

// Context owns the snapshot history for one accumulator. It must not be
// shared across accumulators, and access must be serialized by the caller
// (one Context per logical stream, mutex-guarded or ownership-transferred).
type Context struct {
	auth *snapshot.Authenticator
	log  *slog.Logger

	Ring     snapshot.Ring
	Shadow   snapshot.Snapshot
	Counters Counters
}

// Init builds a Context from an authoritative starting state: the state is
// captured into ring slot 0 and the shadow, all other slots stay sentinel.
// A nil logger falls back to slog.Default.
func Init(auth *snapshot.Authenticator, s *sponge.State, log *slog.Logger) (*Context, error) {
	if auth == nil {
		auth = snapshot.NewAuthenticator()
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Context{auth: auth, log: log}
	if err := c.rebase(s); err != nil {
		return nil, err
	}
	return c, nil
}

// Restore builds a Context around history recovered from an archive. The
// caller is responsible for having verified the snapshots.
func Restore(auth *snapshot.Authenticator, ring snapshot.Ring, shadow snapshot.Snapshot, log *slog.Logger) *Context {
	if auth == nil {
		auth = snapshot.NewAuthenticator()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Context{auth: auth, log: log, Ring: ring, Shadow: shadow}
}

// rebase throws away all history and restarts it from s. The old history is
// discarded even when the capture fails, so a failed rebase leaves only
// sentinel slots rather than stale snapshots.
func (c *Context) rebase(s *sponge.State) error {
	c.Ring.Reset()
	c.Shadow.Clear()
	sn, err := c.auth.Capture(s)
	if err != nil {
		return err
	}
	c.Ring.Slots[0] = sn
	c.Shadow = sn
	return nil
}

// Save captures a fresh snapshot of s into the ring and replaces the shadow.
func (c *Context) Save(s *sponge.State) error {
	sn, err := c.auth.Capture(s)
	if err != nil {
		return err
	}
	c.Ring.Store(sn)
	c.Shadow = sn
	return nil
}

// Detect reports whether s is anomalous. The shadow is the fast path; when
// it fails, the absorbed-byte bound is checked, then every ring slot. A
// match against any historical snapshot counts as healthy. Passing detection
// resets the consecutive-anomaly counter.
func (c *Context) Detect(s *sponge.State) bool {
	if c.auth.Verify(s, &c.Shadow) {
		c.Counters.ConsecutiveAnomalies = 0
		return false
	}

	if s.AbsorbedBytes > MaxAbsorbedBytes {
		c.log.Warn("absorbed-byte counter exceeds sanity bound",
			"absorbed", s.AbsorbedBytes, "bound", uint64(MaxAbsorbedBytes))
		return true
	}

	healthy := false
	c.Ring.ScanBackward(func(_ int, sn *snapshot.Snapshot) bool {
		if !sn.Empty() && c.auth.Verify(s, sn) {
			healthy = true
			return false
		}
		return true
	})
	if healthy {
		c.Counters.ConsecutiveAnomalies = 0
		return false
	}

	c.log.Warn("state matches neither shadow nor any ring snapshot")
	return true
}

// Recover attempts to heal s in escalating tiers: word-granular repair from
// the shadow, full revert to the most recent self-verifying ring snapshot,
// and finally forced re-initialization. It returns true when s was healed
// without a full reinit; false means history was unrecoverable and all
// absorbed input was lost. Repair and revert totals survive a reinit.
func (c *Context) Recover(s *sponge.State) bool {
	c.Counters.ConsecutiveAnomalies++

	if c.partialRepair(s) {
		return true
	}
	if c.fullRevert(s) {
		return true
	}
	c.forceReinit(s)
	return false
}

// partialRepair overwrites every live word whose checksum disagrees with the
// shadow, then re-runs detection.
func (c *Context) partialRepair(s *sponge.State) bool {
	fixed := 0
	for i := range s.Words {
		if checksum.Word(s.Words[i], c.Shadow.Key) != c.Shadow.WordChecks[i] {
			s.Words[i] = c.Shadow.Words[i]
			fixed++
		}
	}
	if fixed == 0 || c.Detect(s) {
		return false
	}

	c.Counters.PartialRepairs++
	c.Counters.ConsecutiveAnomalies = 0
	c.log.Info("partial repair healed state", "wordsFixed", fixed)
	if err := c.Save(s); err != nil {
		c.log.Error("snapshot after partial repair failed", "error", err)
	}
	return true
}

// fullRevert walks the ring most recent first and restores the first
// non-sentinel slot whose own stored words self-verify.
func (c *Context) fullRevert(s *sponge.State) bool {
	reverted := false
	c.Ring.ScanBackward(func(idx int, sn *snapshot.Snapshot) bool {
		if sn.Empty() || !c.auth.SelfVerify(sn) {
			return true
		}
		s.Words = sn.Words
		s.AbsorbedBytes = sn.AbsorbedBytes
		c.Shadow = *sn
		c.Counters.FullReverts++
		c.Counters.ConsecutiveAnomalies = 0
		c.log.Info("full revert to ring snapshot", "slot", idx)
		reverted = true
		return false
	})
	if !reverted {
		return false
	}
	if err := c.Save(s); err != nil {
		c.log.Error("snapshot after full revert failed", "error", err)
	}
	return true
}

// forceReinit abandons recovery: the accumulator goes back to its fixed
// initial state and the snapshot history restarts from it.
func (c *Context) forceReinit(s *sponge.State) {
	s.Init()
	if err := c.rebase(s); err != nil {
		// Keys come from crypto/rand; if that fails there is nothing
		// better to rebase onto. The sentinel history stays empty.
		c.log.Error("rebase after forced reinit failed", "error", err)
	}
	c.Counters.ForcedReinits++
	c.Counters.ConsecutiveAnomalies = 0
	c.log.Warn("forced re-initialization, absorbed input lost",
		"forcedReinits", c.Counters.ForcedReinits)
}
