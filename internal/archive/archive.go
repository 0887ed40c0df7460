// Package archive serializes a self-heal snapshot history to an
// lzma-compressed gob stream, so a process can carry its verified history
// across restarts. Imported snapshots are re-verified before use; an archive
// whose shadow or ring fails self-verification is rejected wholesale.
package archive

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"

	"github.com/fortresskit/fortress/pkg/snapshot"
)

var ErrCorruptArchive = errors.New("archive: snapshot history failed self-verification")

type payload struct {
	Ring   snapshot.Ring
	Shadow snapshot.Snapshot
}

// Export writes the ring and shadow to w.
func Export(w io.Writer, ring snapshot.Ring, shadow snapshot.Snapshot) error {
	zw, err := lzma.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create lzma writer: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(payload{Ring: ring, Shadow: shadow}); err != nil {
		return fmt.Errorf("encode snapshot history: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush lzma writer: %w", err)
	}
	return nil
}

// Import reads a history written by Export and self-verifies every
// non-sentinel snapshot in it.
func Import(r io.Reader) (snapshot.Ring, snapshot.Snapshot, error) {
	var p payload

	zr, err := lzma.NewReader(r)
	if err != nil {
		return snapshot.Ring{}, snapshot.Snapshot{}, fmt.Errorf("create lzma reader: %w", err)
	}
	if err := gob.NewDecoder(zr).Decode(&p); err != nil {
		return snapshot.Ring{}, snapshot.Snapshot{}, fmt.Errorf("decode snapshot history: %w", err)
	}

	auth := snapshot.NewAuthenticator()
	if !auth.SelfVerify(&p.Shadow) {
		return snapshot.Ring{}, snapshot.Snapshot{}, ErrCorruptArchive
	}
	for i := range p.Ring.Slots {
		sn := &p.Ring.Slots[i]
		if !sn.Empty() && !auth.SelfVerify(sn) {
			return snapshot.Ring{}, snapshot.Snapshot{}, ErrCorruptArchive
		}
	}
	if p.Ring.Current < 0 || p.Ring.Current >= snapshot.RingSize {
		return snapshot.Ring{}, snapshot.Snapshot{}, ErrCorruptArchive
	}
	return p.Ring, p.Shadow, nil
}
