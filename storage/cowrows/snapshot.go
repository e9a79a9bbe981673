package cowrows

import (
	"context"
	"encoding/binary"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/cowrows/expr"
	"github.com/leftmike/cowrows/sql"
	"github.com/leftmike/cowrows/storage"
	"github.com/leftmike/cowrows/storage/slab"
	"github.com/leftmike/cowrows/storage/stream"
)

type StreamKind int

const (
	StreamSnapshot StreamKind = iota + 1
)

// cowIterator walks the pending snapshot block set in the order captured at
// activation, then by slot within each block, skipping inactive and dirty
// slots. A fully visited block is demoted to not pending snapshot, which
// also clears its dirty bits.
type cowIterator struct {
	heap   *slab.Heap
	blocks []*slab.Block
	bpos   map[int]int // block id -> position in blocks
	bdx    int
	slot   int // next slot to examine in blocks[bdx]
}

func newCOWIterator(heap *slab.Heap, blocks []*slab.Block) *cowIterator {
	bpos := make(map[int]int, len(blocks))
	for bdx, b := range blocks {
		bpos[b.ID()] = bdx
	}
	return &cowIterator{
		heap:   heap,
		blocks: blocks,
		bpos:   bpos,
	}
}

func (ci *cowIterator) next() (slab.Ref, bool) {
	for ci.bdx < len(ci.blocks) {
		b := ci.blocks[ci.bdx]
		for ci.slot < b.UsedSlots() {
			slot := ci.slot
			ci.slot += 1
			f := b.Flags(slot)
			if f.IsActive() && !f.IsDirty() {
				return slab.Ref{Block: b.ID(), Slot: slot}, true
			}
		}
		ci.heap.Demote(b)
		ci.bdx += 1
		ci.slot = 0
	}
	return slab.Ref{}, false
}

// passed reports whether the iterator has already visited the slot; writers
// only need to preserve pre-images of slots the iterator has not reached.
func (ci *cowIterator) passed(ref slab.Ref) bool {
	pos, ok := ci.bpos[ref.Block]
	if !ok {
		// The block was allocated after activation and is never visited.
		return false
	}
	if pos != ci.bdx {
		return pos < ci.bdx
	}
	return ref.Slot < ci.slot
}

type pendingTuple struct {
	payload  []byte
	row      []sql.Value
	ref      slab.Ref
	fromHeap bool
}

// snapshotContext carries one activation: the compiled predicates, the copy
// on write iterator, and the pool of preserved pre-images that writers fill
// as they mutate not yet visited tuples.
type snapshotContext struct {
	serializer   stream.TupleSerializer
	partitionID  int32
	deleteAsWeGo bool
	preds        []expr.Predicate
	iter         *cowIterator
	preserved    [][]byte
	drained      int
	tableScanned bool
	pending      *pendingTuple
}

func (sc *snapshotContext) preserve(payload []byte) {
	sc.preserved = append(sc.preserved, payload)
}

// ActivateStream transitions the table into snapshot mode. The input bytes
// carry a delete-as-streamed flag and the predicate strings:
//
//	byte  deleteAsWeGo
//	int32 predicate count
//	predicate count times: int32 length, length bytes of JSON
//
// Activation fails without changing the table when a snapshot is already
// active or a predicate does not compile.
func (tbl *Table) ActivateStream(ctx context.Context, ts stream.TupleSerializer,
	kind StreamKind, partitionID int32, input []byte) error {

	if kind != StreamSnapshot {
		return fmt.Errorf("cowrows: table %s: unexpected stream kind %d", tbl.layout.Name(),
			kind)
	}
	if tbl.snap != nil {
		return fmt.Errorf("cowrows: table %s: %w", tbl.layout.Name(),
			storage.ErrSnapshotActive)
	}

	deleteAsWeGo, preds, err := tbl.parseActivation(input)
	if err != nil {
		return err
	}

	captured := tbl.heap.SwapClassification()
	tbl.snap = &snapshotContext{
		serializer:   ts,
		partitionID:  partitionID,
		deleteAsWeGo: deleteAsWeGo,
		preds:        preds,
		iter:         newCOWIterator(tbl.heap, captured),
	}

	log.WithFields(log.Fields{
		"table":      tbl.layout.Name(),
		"blocks":     len(captured),
		"predicates": len(preds),
	}).Debug("snapshot activated")
	return nil
}

func (tbl *Table) parseActivation(input []byte) (bool, []expr.Predicate, error) {
	if len(input) < 5 {
		return false, nil, fmt.Errorf("cowrows: table %s: activation input is %d bytes",
			tbl.layout.Name(), len(input))
	}
	deleteAsWeGo := input[0] != 0
	cnt := int(int32(binary.BigEndian.Uint32(input[1:])))
	input = input[5:]

	var preds []expr.Predicate
	for pdx := 0; pdx < cnt; pdx++ {
		if len(input) < 4 {
			return false, nil, fmt.Errorf("cowrows: table %s: truncated predicate %d",
				tbl.layout.Name(), pdx)
		}
		l := int(int32(binary.BigEndian.Uint32(input)))
		input = input[4:]
		if l < 0 || len(input) < l {
			return false, nil, fmt.Errorf("cowrows: table %s: truncated predicate %d",
				tbl.layout.Name(), pdx)
		}
		pred, err := expr.Compile(string(input[:l]), tbl.layout)
		if err != nil {
			return false, nil, err
		}
		preds = append(preds, pred)
		input = input[l:]
	}
	return deleteAsWeGo, preds, nil
}

// nextTuple returns the next snapshot tuple: the queued tuple from the last
// yield, then the table scan, then the preserved pre-image pool.
func (tbl *Table) nextTuple() (*pendingTuple, bool) {
	sc := tbl.snap
	if sc.pending != nil {
		pt := sc.pending
		sc.pending = nil
		return pt, true
	}

	if !sc.tableScanned {
		ref, ok := sc.iter.next()
		if ok {
			payload := tbl.heap.Payload(ref)
			return &pendingTuple{
				payload:  payload,
				row:      storage.DecodeRow(tbl.layout, payload),
				ref:      ref,
				fromHeap: true,
			}, true
		}
		sc.tableScanned = true
	}

	if sc.drained < len(sc.preserved) {
		payload := sc.preserved[sc.drained]
		sc.drained += 1
		return &pendingTuple{
			payload: payload,
			row:     storage.DecodeRow(tbl.layout, payload),
		}, true
	}
	return nil, false
}

// remainingTuples estimates the tuples the snapshot still has to stream; it
// is positive until the snapshot completes.
func (tbl *Table) remainingTuples() int64 {
	sc := tbl.snap
	var remaining int64
	for _, b := range sc.iter.blocks {
		if b.Pending() {
			remaining += int64(b.ActiveCount())
		}
	}
	remaining += int64(len(sc.preserved) - sc.drained)
	if sc.pending != nil {
		remaining += 1
	}
	return remaining
}

// StreamMore drives snapshot output until every stream buffer is full or the
// snapshot is exhausted. It returns the remaining tuple estimate, zero
// exactly when the snapshot has completed and the table has left snapshot
// mode, and the bytes framed per stream.
func (tbl *Table) StreamMore(ctx context.Context, p *stream.Processor) (int64, []int, error) {
	sc := tbl.snap
	if sc == nil {
		return -1, nil, fmt.Errorf("cowrows: table %s: %w", tbl.layout.Name(),
			storage.ErrNotSnapshotting)
	}

	p.Open(sc.partitionID, sc.preds)

	for {
		pt, ok := tbl.nextTuple()
		if !ok {
			p.Close(true, 0)
			tbl.snap = nil
			log.WithField("table", tbl.layout.Name()).Debug("snapshot completed")
			return 0, p.Positions(), nil
		}

		wrote, yielded, err := p.WriteRow(sc.serializer, pt.payload, pt.row)
		if err != nil {
			return -1, nil, err
		}
		if yielded {
			if pt.fromHeap {
				// The payload aliases the block slab; mutations between
				// calls preserve pre-images only for slots the iterator has
				// not passed, so queue a stable copy.
				pt.payload = append([]byte(nil), pt.payload...)
			}
			sc.pending = pt
			p.Close(false, len(pt.payload))
			return tbl.remainingTuples(), p.Positions(), nil
		}
		if wrote > 0 && sc.deleteAsWeGo && pt.fromHeap {
			tbl.deleteStreamed(pt.ref)
		}
	}
}

// deleteStreamed removes a tuple right after it was streamed; the removal
// bypasses the undo log because delete-as-streamed snapshots own their
// mutations.
func (tbl *Table) deleteStreamed(ref slab.Ref) {
	b := tbl.heap.Block(ref.Block)
	if b == nil || !b.Flags(ref.Slot).IsActive() {
		// The tuple was deleted between calls while queued for yield.
		return
	}
	key := tbl.makeKey(tbl.decodeRef(ref))
	tbl.pk.remove(key)
	b.MarkDeleted(ref.Slot)
	b.FinishDelete(ref.Slot)
}
