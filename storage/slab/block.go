package slab

import (
	"fmt"
)

// Block is a fixed size slab of tuple slots. Each slot is a one byte flag
// header followed by tupleLen payload bytes. Slots are handed out in order;
// freed slots are kept on a LIFO list so that recently freed slots are
// reused first.
type Block struct {
	id       int
	tupleLen int
	data     []byte
	slots    int
	used     int   // high water mark of slots ever allocated
	free     []int // freed slots below the high water mark
	active   int
	deleting int  // slots pending delete
	pending  bool // pending snapshot
}

func newBlock(id, tupleLen, targetSize int) *Block {
	slots := targetSize / (tupleLen + 1)
	if slots < 1 {
		slots = 1
	}
	return &Block{
		id:       id,
		tupleLen: tupleLen,
		data:     make([]byte, slots*(tupleLen+1)),
		slots:    slots,
	}
}

func (b *Block) ID() int {
	return b.id
}

func (b *Block) SlotCount() int {
	return b.slots
}

// UsedSlots is the slot range to enumerate; slots at or beyond it have never
// been allocated.
func (b *Block) UsedSlots() int {
	return b.used
}

func (b *Block) ActiveCount() int {
	return b.active
}

// PendingDeleteCount is the number of slots waiting on undo quantum release;
// compaction must leave blocks with such slots alone because the undo log
// still references them.
func (b *Block) PendingDeleteCount() int {
	return b.deleting
}

func (b *Block) Pending() bool {
	return b.pending
}

func (b *Block) SetPending(pending bool) {
	b.pending = pending
}

func (b *Block) HasFree() bool {
	return len(b.free) > 0 || b.used < b.slots
}

// FillRatio is active slots over total slots; compaction candidates are
// blocks with a low fill ratio.
func (b *Block) FillRatio() float64 {
	return float64(b.active) / float64(b.slots)
}

func (b *Block) flagsOffset(slot int) int {
	if slot < 0 || slot >= b.used {
		panic(fmt.Sprintf("slab: block %d: slot %d out of range [0, %d)", b.id, slot, b.used))
	}
	return slot * (b.tupleLen + 1)
}

func (b *Block) Flags(slot int) Flags {
	return Flags(b.data[b.flagsOffset(slot)])
}

func (b *Block) setFlags(slot int, f Flags) {
	b.data[b.flagsOffset(slot)] = byte(f)
}

// Payload returns the tuple payload bytes of a slot; the slice aliases the
// block slab and is only valid until the slot is freed or overwritten.
func (b *Block) Payload(slot int) []byte {
	off := b.flagsOffset(slot) + 1
	return b.data[off : off+b.tupleLen : off+b.tupleLen]
}

func (b *Block) SetPayload(slot int, payload []byte) {
	if len(payload) != b.tupleLen {
		panic(fmt.Sprintf("slab: block %d: payload is %d bytes; want %d", b.id, len(payload),
			b.tupleLen))
	}
	copy(b.Payload(slot), payload)
}

// Alloc returns a free slot marked active. The payload is not cleared.
func (b *Block) Alloc() (int, bool) {
	var slot int
	if len(b.free) > 0 {
		slot = b.free[len(b.free)-1]
		b.free = b.free[:len(b.free)-1]
	} else if b.used < b.slots {
		slot = b.used
		b.used += 1
	} else {
		return 0, false
	}
	b.setFlags(slot, Active)
	b.active += 1
	return slot, true
}

// Free returns an inactive slot to the free list.
func (b *Block) Free(slot int) {
	f := b.Flags(slot)
	if f.IsActive() {
		panic(fmt.Sprintf("slab: block %d: freeing active slot %d", b.id, slot))
	}
	b.setFlags(slot, 0)
	b.free = append(b.free, slot)
}

// Evict frees an active slot without the pending delete protocol;
// compaction uses it after relocating the tuple elsewhere.
func (b *Block) Evict(slot int) {
	f := b.Flags(slot)
	if !f.IsActive() {
		panic(fmt.Sprintf("slab: block %d: evicting inactive slot %d", b.id, slot))
	}
	b.setFlags(slot, 0)
	b.active -= 1
	b.free = append(b.free, slot)
}

func (b *Block) SetDirty(slot int, dirty bool) {
	f := b.Flags(slot)
	if dirty {
		f |= Dirty
	} else {
		f &^= Dirty
	}
	b.setFlags(slot, f)
}

// MarkDeleted transitions an active slot to pending delete; the slot stays
// off the free list until FinishDelete or RestoreDeleted.
func (b *Block) MarkDeleted(slot int) {
	f := b.Flags(slot)
	if !f.IsActive() {
		panic(fmt.Sprintf("slab: block %d: deleting inactive slot %d", b.id, slot))
	}
	b.setFlags(slot, (f&^Active)|PendingDelete)
	b.active -= 1
	b.deleting += 1
}

// RestoreDeleted reverses MarkDeleted.
func (b *Block) RestoreDeleted(slot int) {
	f := b.Flags(slot)
	if !f.IsPendingDelete() {
		panic(fmt.Sprintf("slab: block %d: slot %d is not pending delete", b.id, slot))
	}
	b.setFlags(slot, (f&^PendingDelete)|Active)
	b.active += 1
	b.deleting -= 1
}

// FinishDelete frees a pending delete slot.
func (b *Block) FinishDelete(slot int) {
	f := b.Flags(slot)
	if !f.IsPendingDelete() {
		panic(fmt.Sprintf("slab: block %d: slot %d is not pending delete", b.id, slot))
	}
	b.setFlags(slot, 0)
	b.free = append(b.free, slot)
	b.deleting -= 1
}
