package cowrows

import (
	log "github.com/sirupsen/logrus"

	"github.com/leftmike/cowrows/storage"
	"github.com/leftmike/cowrows/storage/slab"
)

// Blocks below this fill ratio are compaction candidates.
const forcedCompactionFill = 0.75

// DoForcedCompaction relocates the tuples of underfilled blocks into better
// filled blocks and releases the drained blocks. Pending snapshot blocks and
// blocks with slots awaiting undo quantum release are left alone. It returns
// the number of tuples relocated.
func (tbl *Table) DoForcedCompaction() int {
	var moved, released int
	for {
		src := tbl.compactionSource()
		if src == nil {
			break
		}
		if src.ActiveCount() > 0 && !tbl.drainBlock(src, &moved) {
			break
		}
		tbl.heap.RemoveBlock(src)
		released += 1
	}

	if moved > 0 || released > 0 {
		log.WithFields(log.Fields{
			"table":    tbl.layout.Name(),
			"tuples":   moved,
			"released": released,
		}).Debug("forced compaction")
	}
	return moved
}

// compactionSource picks the lightest block eligible for draining.
func (tbl *Table) compactionSource() *slab.Block {
	var src *slab.Block
	for _, b := range tbl.heap.Blocks() {
		if b.Pending() || b.PendingDeleteCount() > 0 || b.UsedSlots() == 0 {
			continue
		}
		if b.ActiveCount() > 0 && b.FillRatio() >= forcedCompactionFill {
			continue
		}
		if src == nil || b.FillRatio() < src.FillRatio() {
			src = b
		}
	}
	if src != nil && src.ActiveCount() > 0 && !tbl.haveDestination(src) {
		return nil
	}
	return src
}

func (tbl *Table) haveDestination(src *slab.Block) bool {
	for _, b := range tbl.heap.Blocks() {
		if b != src && !b.Pending() && b.HasFree() {
			return true
		}
	}
	return false
}

// drainBlock relocates every active tuple out of src, rewriting the primary
// key index, fixing up open undo quanta, and routing moved tuples past any
// elastic scanners. It reports whether the block was fully drained.
func (tbl *Table) drainBlock(src *slab.Block, moved *int) bool {
	for slot := 0; slot < src.UsedSlots(); slot++ {
		if !src.Flags(slot).IsActive() {
			continue
		}

		dest := tbl.compactionDestination(src)
		if dest == nil {
			return false
		}
		dslot, ok := dest.Alloc()
		if !ok {
			panic("cowrows: compaction destination has no free slot")
		}

		from := slab.Ref{Block: src.ID(), Slot: slot}
		to := slab.Ref{Block: dest.ID(), Slot: dslot}
		payload := src.Payload(slot)
		row := storage.DecodeRow(tbl.layout, payload)

		for _, scn := range tbl.scanners {
			scn.tupleMoved(from, to, row)
		}

		dest.SetPayload(dslot, payload)
		tbl.pk.rehome(tbl.makeKey(row), to)
		tbl.undo.rehome(tbl, from, to)
		src.Evict(slot)
		*moved += 1
	}
	return src.ActiveCount() == 0
}

// compactionDestination picks the fullest block with room that is safe to
// grow.
func (tbl *Table) compactionDestination(src *slab.Block) *slab.Block {
	var dest *slab.Block
	for _, b := range tbl.heap.Blocks() {
		if b == src || b.Pending() || !b.HasFree() {
			continue
		}
		if dest == nil || b.FillRatio() > dest.FillRatio() {
			dest = b
		}
	}
	return dest
}
