package cowrows

import (
	"bytes"
	"context"
	"io"

	"github.com/leftmike/cowrows/sql"
	"github.com/leftmike/cowrows/storage/slab"
)

// StrayTupleCatcher receives tuples that compaction would otherwise move out
// of an elastic scanner's remaining path.
type StrayTupleCatcher interface {
	CatchTuple(row []sql.Value)
}

// Scanner is a live iterator over the table that tolerates concurrent
// mutation and compaction. Every tuple present at scanner creation is
// reported exactly once, either by Next or through the stray tuple catcher;
// tuples inserted later may or may not be reported.
type Scanner struct {
	tbl     *Table
	catcher StrayTupleCatcher
	lastID  int // highest block id completed or abandoned
	current int // block id being scanned, or -1
	slot    int // next slot to examine in the current block

	// Slots holding tuples that were already reported before compaction
	// moved them ahead of the cursor, each mapped to the moved tuple's
	// primary key so that a reused slot is not wrongly skipped.
	skip map[slab.Ref][]byte

	done bool
}

// ElasticScanner registers and returns a live scanner over the table.
func (tbl *Table) ElasticScanner(catcher StrayTupleCatcher) *Scanner {
	scn := &Scanner{
		tbl:     tbl,
		catcher: catcher,
		lastID:  -1,
		current: -1,
		skip:    map[slab.Ref][]byte{},
	}
	tbl.scanners = append(tbl.scanners, scn)
	return scn
}

// Close unregisters the scanner.
func (scn *Scanner) Close() error {
	scn.done = true
	for sdx, s := range scn.tbl.scanners {
		if s == scn {
			scn.tbl.scanners = append(scn.tbl.scanners[:sdx], scn.tbl.scanners[sdx+1:]...)
			break
		}
	}
	return nil
}

// nextBlock finds the unscanned block with the smallest id above every block
// already handled. Block ids are never reused, so blocks created after the
// scanner may be visited and removed blocks are skipped.
func (scn *Scanner) nextBlock() *slab.Block {
	var next *slab.Block
	for _, b := range scn.tbl.heap.Blocks() {
		if b.ID() <= scn.lastID {
			continue
		}
		if next == nil || b.ID() < next.ID() {
			next = b
		}
	}
	return next
}

func (scn *Scanner) Next(ctx context.Context, dest []sql.Value) error {
	if scn.done {
		return io.EOF
	}

	for {
		var b *slab.Block
		if scn.current >= 0 {
			b = scn.tbl.heap.Block(scn.current)
			if b == nil {
				// Compaction released the block; its remaining tuples were
				// handed to the catcher or relocated ahead of us.
				scn.lastID = scn.current
				scn.current = -1
				continue
			}
		} else {
			b = scn.nextBlock()
			if b == nil {
				scn.done = true
				return io.EOF
			}
			scn.current = b.ID()
			scn.slot = 0
		}

		for scn.slot < b.UsedSlots() {
			slot := scn.slot
			scn.slot += 1
			ref := slab.Ref{Block: b.ID(), Slot: slot}
			if !b.Flags(slot).IsActive() {
				continue
			}
			row := scn.tbl.decodeRef(ref)
			if want, ok := scn.skip[ref]; ok {
				delete(scn.skip, ref)
				if bytes.Equal(scn.tbl.makeKey(row), want) {
					continue
				}
				// A different tuple reused the slot; report it.
			}
			copy(dest, row)
			return nil
		}

		scn.lastID = scn.current
		scn.current = -1
	}
}

// scanned reports whether the scanner has already visited the slot.
func (scn *Scanner) scanned(ref slab.Ref) bool {
	if scn.done {
		return true
	}
	if ref.Block == scn.current {
		return ref.Slot < scn.slot
	}
	return ref.Block <= scn.lastID
}

// tupleMoved is called by compaction before relocating a tuple. A tuple
// moving from ahead of the cursor to behind it would be missed, so it goes
// to the catcher; a tuple moving from behind to ahead would be reported
// twice, so the destination slot joins the skip set.
func (scn *Scanner) tupleMoved(from, to slab.Ref, row []sql.Value) {
	fromScanned := scn.scanned(from)
	if _, ok := scn.skip[from]; ok {
		// The tuple moving out of a skipped slot was already reported.
		delete(scn.skip, from)
		fromScanned = true
	}
	toScanned := scn.scanned(to)
	if !fromScanned && toScanned {
		if scn.catcher != nil {
			scn.catcher.CatchTuple(row)
		}
	} else if fromScanned && !toScanned {
		scn.skip[to] = scn.tbl.makeKey(row)
	}
}
