// Package cowrows implements a block structured in-memory table that
// supports copy on write snapshot streaming: a snapshot reader observes a
// consistent view of the table as of activation while inserts, updates, and
// deletes continue, and an elastic scanner observes a live view that
// tolerates compaction.
package cowrows

import (
	"context"
	"fmt"
	"io"
	"math/rand"

	"github.com/leftmike/cowrows/sql"
	"github.com/leftmike/cowrows/storage"
	"github.com/leftmike/cowrows/storage/slab"
)

type Table struct {
	layout   *storage.TableLayout
	heap     *slab.Heap
	pk       *pkIndex
	undo     *UndoLog
	snap     *snapshotContext
	scanners []*Scanner
}

// NewTable creates an empty table; blockSize of zero selects the default
// block allocation target.
func NewTable(layout *storage.TableLayout, blockSize int, undo *UndoLog) *Table {
	if undo == nil {
		undo = NewUndoLog()
	}
	return &Table{
		layout: layout,
		heap:   slab.NewHeap(layout.RowWidth(), blockSize),
		pk:     newPKIndex(),
		undo:   undo,
	}
}

func (tbl *Table) Layout() *storage.TableLayout {
	return tbl.layout
}

func (tbl *Table) UndoLog() *UndoLog {
	return tbl.undo
}

func (tbl *Table) ActiveTupleCount() int {
	return tbl.heap.ActiveTupleCount()
}

func (tbl *Table) BlockCount() int {
	return tbl.heap.BlockCount()
}

func (tbl *Table) BlocksPendingSnapshotCount() int {
	return tbl.heap.PendingBlockCount()
}

func (tbl *Table) BlocksNotPendingSnapshotCount() int {
	return tbl.heap.NotPendingBlockCount()
}

func (tbl *Table) Snapshotting() bool {
	return tbl.snap != nil
}

// DirtyTupleCount counts active tuples with the dirty bit set; it is zero
// whenever no snapshot is active.
func (tbl *Table) DirtyTupleCount() int {
	var cnt int
	for _, b := range tbl.heap.Blocks() {
		for slot := 0; slot < b.UsedSlots(); slot++ {
			f := b.Flags(slot)
			if f.IsActive() && f.IsDirty() {
				cnt += 1
			}
		}
	}
	return cnt
}

func (tbl *Table) makeKey(row []sql.Value) []byte {
	return storage.MakeKey(tbl.layout.PrimaryKey(), row)
}

func (tbl *Table) decodeRef(ref slab.Ref) []sql.Value {
	return storage.DecodeRow(tbl.layout, tbl.heap.Payload(ref))
}

// Insert adds a row, updating the primary key index and logging the insert
// to the current undo quantum.
func (tbl *Table) Insert(ctx context.Context, row []sql.Value) error {
	err := tbl.layout.CheckRow(row)
	if err != nil {
		return err
	}
	key := tbl.makeKey(row)
	if tbl.pk.contains(key) {
		return fmt.Errorf("cowrows: table %s: duplicate primary key: %w", tbl.layout.Name(),
			storage.ErrUniqueConstraint)
	}

	ref := tbl.heap.AllocSlot()
	b := tbl.heap.Block(ref.Block)
	b.SetPayload(ref.Slot, storage.EncodeRow(tbl.layout, row))
	if b.Pending() {
		b.SetDirty(ref.Slot, true)
	}
	tbl.pk.insert(key, ref)
	tbl.undo.logInsert(tbl, ref, key)
	return nil
}

// Update overwrites the row at ref with new values. If the tuple sits in a
// pending snapshot block and has not been touched during this snapshot, the
// pre-image is preserved for the snapshot before the overwrite.
func (tbl *Table) Update(ctx context.Context, ref slab.Ref, row []sql.Value) error {
	err := tbl.layout.CheckRow(row)
	if err != nil {
		return err
	}

	b := tbl.heap.Block(ref.Block)
	if b == nil || !b.Flags(ref.Slot).IsActive() {
		panic(fmt.Sprintf("cowrows: table %s: update of missing tuple %s", tbl.layout.Name(),
			ref))
	}

	preRow := tbl.decodeRef(ref)
	preKey := tbl.makeKey(preRow)
	key := tbl.makeKey(row)
	keyChanged := string(preKey) != string(key)
	if keyChanged && tbl.pk.contains(key) {
		return fmt.Errorf("cowrows: table %s: duplicate primary key: %w", tbl.layout.Name(),
			storage.ErrUniqueConstraint)
	}

	tbl.cowPreserve(b, ref)

	prePayload := append([]byte(nil), b.Payload(ref.Slot)...)
	tbl.undo.logUpdate(tbl, ref, key, preKey, prePayload)

	b.SetPayload(ref.Slot, storage.EncodeRow(tbl.layout, row))
	if keyChanged {
		tbl.pk.remove(preKey)
		tbl.pk.insert(key, ref)
	}
	return nil
}

// Delete removes the tuple at ref from the index and marks its slot pending
// delete; the slot is reclaimed when the deleting undo quantum is released.
func (tbl *Table) Delete(ctx context.Context, ref slab.Ref) error {
	b := tbl.heap.Block(ref.Block)
	if b == nil || !b.Flags(ref.Slot).IsActive() {
		panic(fmt.Sprintf("cowrows: table %s: delete of missing tuple %s", tbl.layout.Name(),
			ref))
	}

	tbl.cowPreserve(b, ref)

	key := tbl.makeKey(tbl.decodeRef(ref))
	tbl.pk.remove(key)
	b.MarkDeleted(ref.Slot)
	tbl.undo.logDelete(tbl, ref, key)
	return nil
}

// cowPreserve copies the pre-image of a tuple into the snapshot's preserved
// pool the first time the tuple is mutated while its block is pending
// snapshot and the copy on write iterator has not passed it yet.
func (tbl *Table) cowPreserve(b *slab.Block, ref slab.Ref) {
	if tbl.snap == nil || !b.Pending() || b.Flags(ref.Slot).IsDirty() {
		return
	}
	if tbl.snap.iter.passed(ref) {
		return
	}
	tbl.snap.preserve(append([]byte(nil), b.Payload(ref.Slot)...))
	b.SetDirty(ref.Slot, true)
}

// finishDelete reclaims a pending delete slot; called at undo quantum
// release, or immediately when there is no current quantum.
func (tbl *Table) finishDelete(ref slab.Ref) {
	tbl.heap.Block(ref.Block).FinishDelete(ref.Slot)
}

// Undo operations honor snapshot visibility the same way mutations do: a
// quantum begun before activation may be reversed mid snapshot, so reversing
// is itself a mutation of the activation time view and preserves pre-images
// for tuples the iterator has not reached.

func (tbl *Table) undoInsert(ref slab.Ref, key []byte) {
	b := tbl.heap.Block(ref.Block)
	tbl.cowPreserve(b, ref)
	tbl.pk.remove(key)
	b.MarkDeleted(ref.Slot)
	b.FinishDelete(ref.Slot)
}

// undoDelete restores a deleted row in place. If the delete preserved a
// pre-image for an active snapshot, the tuple is still dirty and the copy on
// write iterator will not stream the restored row a second time; a restored
// tuple whose delete preceded activation was not part of the activation view
// and is hidden from the iterator the same way.
func (tbl *Table) undoDelete(ref slab.Ref, key []byte) {
	b := tbl.heap.Block(ref.Block)
	b.RestoreDeleted(ref.Slot)
	if tbl.snap != nil && b.Pending() && !b.Flags(ref.Slot).IsDirty() &&
		!tbl.snap.iter.passed(ref) {

		b.SetDirty(ref.Slot, true)
	}
	tbl.pk.insert(key, ref)
}

func (tbl *Table) undoUpdate(ref slab.Ref, key, preKey, prePayload []byte) {
	b := tbl.heap.Block(ref.Block)
	tbl.cowPreserve(b, ref)
	b.SetPayload(ref.Slot, prePayload)
	if string(preKey) != string(key) {
		tbl.pk.remove(key)
		tbl.pk.insert(preKey, ref)
	}
}

// DeleteAllTuples resets the table to empty. It is not reversible and may
// not be used while a snapshot is active or an unreleased undo quantum holds
// logged mutations.
func (tbl *Table) DeleteAllTuples() {
	if tbl.snap != nil {
		panic(fmt.Sprintf("cowrows: table %s: truncate during snapshot", tbl.layout.Name()))
	}
	for _, uq := range tbl.undo.quanta {
		if len(uq.entries) > 0 {
			panic(fmt.Sprintf("cowrows: table %s: truncate with open undo quantum",
				tbl.layout.Name()))
		}
	}
	if len(tbl.scanners) > 0 {
		panic(fmt.Sprintf("cowrows: table %s: truncate with registered scanners",
			tbl.layout.Name()))
	}
	tbl.heap = slab.NewHeap(tbl.layout.RowWidth(), tbl.heap.BlockSize())
	tbl.pk = newPKIndex()
}

// Rows iterates the active tuples in block then slot order.
type Rows struct {
	tbl  *Table
	bdx  int
	slot int
	ref  slab.Ref
	have bool
}

func (tbl *Table) Rows(ctx context.Context) *Rows {
	return &Rows{tbl: tbl}
}

func (r *Rows) Next(ctx context.Context, dest []sql.Value) error {
	blocks := r.tbl.heap.Blocks()
	for r.bdx < len(blocks) {
		b := blocks[r.bdx]
		for r.slot < b.UsedSlots() {
			slot := r.slot
			r.slot += 1
			if b.Flags(slot).IsActive() {
				copy(dest, storage.DecodeRow(r.tbl.layout, b.Payload(slot)))
				r.ref = slab.Ref{Block: b.ID(), Slot: slot}
				r.have = true
				return nil
			}
		}
		r.bdx += 1
		r.slot = 0
	}
	r.have = false
	return io.EOF
}

// Ref is the slot handle of the row most recently returned by Next.
func (r *Rows) Ref() slab.Ref {
	if !r.have {
		panic("cowrows: rows: no current row")
	}
	return r.ref
}

func (r *Rows) Close() error {
	r.bdx = r.tbl.heap.BlockCount()
	r.have = false
	return nil
}

// RandomTuple returns a randomly chosen active tuple, or false when the table
// is empty. It picks a random block and then a random used slot in it,
// retrying on inactive slots, so tuples are not equally likely when blocks
// hold different numbers of used slots.
func (tbl *Table) RandomTuple(rnd *rand.Rand) (slab.Ref, []sql.Value, bool) {
	blocks := tbl.heap.Blocks()
	if len(blocks) == 0 || tbl.heap.ActiveTupleCount() == 0 {
		return slab.Ref{}, nil, false
	}

	for {
		b := blocks[rnd.Intn(len(blocks))]
		if b.UsedSlots() == 0 {
			continue
		}
		slot := rnd.Intn(b.UsedSlots())
		if !b.Flags(slot).IsActive() {
			continue
		}
		ref := slab.Ref{Block: b.ID(), Slot: slot}
		return ref, tbl.decodeRef(ref), true
	}
}
