package slab

import (
	"fmt"
)

// DefaultBlockSize is the default block allocation target.
const DefaultBlockSize = 128 * 1024

// Ref is a stable handle to a tuple slot. Refs stay valid until the slot is
// freed or compaction relocates the tuple.
type Ref struct {
	Block int
	Slot  int
}

func (r Ref) String() string {
	return fmt.Sprintf("%d:%d", r.Block, r.Slot)
}

// Heap is the ordered collection of blocks backing one table. Blocks are
// classified as pending snapshot or not; allocation only ever touches the
// not pending set so that pending blocks stay immutable in place.
type Heap struct {
	tupleLen  int
	blockSize int
	order     []*Block // sorted by block id
	blocks    map[int]*Block
	nextID    int
	pending   int // count of pending snapshot blocks
}

func NewHeap(tupleLen, blockSize int) *Heap {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Heap{
		tupleLen:  tupleLen,
		blockSize: blockSize,
		blocks:    map[int]*Block{},
	}
}

func (h *Heap) TupleLen() int {
	return h.tupleLen
}

func (h *Heap) BlockSize() int {
	return h.blockSize
}

// Blocks returns the blocks in id order; the caller must not modify the
// returned slice.
func (h *Heap) Blocks() []*Block {
	return h.order
}

func (h *Heap) Block(id int) *Block {
	return h.blocks[id]
}

func (h *Heap) BlockCount() int {
	return len(h.order)
}

func (h *Heap) PendingBlockCount() int {
	return h.pending
}

func (h *Heap) NotPendingBlockCount() int {
	return len(h.order) - h.pending
}

func (h *Heap) ActiveTupleCount() int {
	var cnt int
	for _, b := range h.order {
		cnt += b.ActiveCount()
	}
	return cnt
}

// AllocSlot finds a free slot in a not pending block, allocating a new block
// when every not pending block is full. New blocks always join the not
// pending set.
func (h *Heap) AllocSlot() Ref {
	for _, b := range h.order {
		if b.Pending() || !b.HasFree() {
			continue
		}
		slot, ok := b.Alloc()
		if !ok {
			panic(fmt.Sprintf("slab: block %d: has free space but allocation failed", b.ID()))
		}
		return Ref{Block: b.ID(), Slot: slot}
	}

	b := newBlock(h.nextID, h.tupleLen, h.blockSize)
	h.nextID += 1
	h.order = append(h.order, b)
	h.blocks[b.ID()] = b

	slot, ok := b.Alloc()
	if !ok {
		panic(fmt.Sprintf("slab: block %d: allocation failed in new block", b.ID()))
	}
	return Ref{Block: b.ID(), Slot: slot}
}

func (h *Heap) FreeSlot(ref Ref) {
	h.mustBlock(ref.Block).Free(ref.Slot)
}

func (h *Heap) mustBlock(id int) *Block {
	b, ok := h.blocks[id]
	if !ok {
		panic(fmt.Sprintf("slab: block %d not found", id))
	}
	return b
}

func (h *Heap) Flags(ref Ref) Flags {
	return h.mustBlock(ref.Block).Flags(ref.Slot)
}

func (h *Heap) Payload(ref Ref) []byte {
	return h.mustBlock(ref.Block).Payload(ref.Slot)
}

// SwapClassification moves every block into the pending snapshot set and
// returns the capture order. Tuples in the captured blocks have their dirty
// bits clear: Demote clears them as each block drains, and a table at rest
// holds no dirty tuples.
func (h *Heap) SwapClassification() []*Block {
	captured := make([]*Block, len(h.order))
	copy(captured, h.order)
	for _, b := range captured {
		b.SetPending(true)
	}
	h.pending = len(captured)
	return captured
}

// Demote moves a pending block back to the not pending set, clearing the
// dirty bit on every slot.
func (h *Heap) Demote(b *Block) {
	if !b.Pending() {
		panic(fmt.Sprintf("slab: block %d is not pending snapshot", b.ID()))
	}
	b.SetPending(false)
	h.pending -= 1
	for slot := 0; slot < b.UsedSlots(); slot++ {
		b.SetDirty(slot, false)
	}
}

// RemoveBlock drops an empty block from the heap; compaction uses it to
// release fully drained blocks.
func (h *Heap) RemoveBlock(b *Block) {
	if b.ActiveCount() != 0 {
		panic(fmt.Sprintf("slab: block %d: removing block with %d active tuples", b.ID(),
			b.ActiveCount()))
	}
	if b.Pending() {
		panic(fmt.Sprintf("slab: block %d: removing pending snapshot block", b.ID()))
	}
	for bdx, blk := range h.order {
		if blk == b {
			h.order = append(h.order[:bdx], h.order[bdx+1:]...)
			delete(h.blocks, b.ID())
			return
		}
	}
	panic(fmt.Sprintf("slab: block %d not found", b.ID()))
}
