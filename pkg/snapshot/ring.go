package snapshot

// RingSize is the fixed snapshot history capacity.
const RingSize = 5

// Ring is a fixed-capacity circular buffer of snapshots. Writes advance the
// current index by one and overwrite the oldest slot; recovery scans walk
// backward from the current index, most recent first.
type Ring struct {
	Slots   [RingSize]Snapshot
	Current int
}

// Reset clears every slot to the empty sentinel and rewinds the index.
func (r *Ring) Reset() {
	for i := range r.Slots {
		r.Slots[i].Clear()
	}
	r.Current = 0
}

// Store advances the ring and writes sn into the newly current slot.
func (r *Ring) Store(sn Snapshot) {
	r.Current = (r.Current + 1) % RingSize
	r.Slots[r.Current] = sn
}

// Latest returns the most recently stored snapshot.
func (r *Ring) Latest() *Snapshot {
	return &r.Slots[r.Current]
}

// ScanBackward visits every slot from the current index backward, wrapping,
// most recent first. It stops early if visit returns false.
func (r *Ring) ScanBackward(visit func(idx int, sn *Snapshot) bool) {
	for i := 0; i < RingSize; i++ {
		idx := (r.Current - i + RingSize) % RingSize
		if !visit(idx, &r.Slots[idx]) {
			return
		}
	}
}
