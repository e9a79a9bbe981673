package cowrows

import (
	"fmt"

	"github.com/leftmike/cowrows/storage/slab"
)

type undoKind int

const (
	undoInsert undoKind = iota + 1
	undoDelete
	undoUpdate
)

type undoEntry struct {
	tbl        *Table
	kind       undoKind
	ref        slab.Ref
	key        []byte // current key of the tuple
	preKey     []byte // update: key before the mutation
	prePayload []byte // update: payload before the mutation
}

type undoQuantum struct {
	token   int64
	entries []undoEntry
}

// UndoLog is a token scoped log of reversible table mutations. Each quantum
// collects the mutations made while its token is current; releasing a token
// makes those mutations permanent and undoing a token reverses them in LIFO
// order. Tokens are monotonically increasing.
//
// With no current quantum mutations are applied immediately and are not
// reversible.
type UndoLog struct {
	quanta  []*undoQuantum // ascending token order
	current *undoQuantum
}

func NewUndoLog() *UndoLog {
	return &UndoLog{}
}

// SetUndoToken begins a new quantum, finalizing the previous quantum's log
// without releasing it.
func (ul *UndoLog) SetUndoToken(token int64) {
	if ul.current != nil && token <= ul.current.token {
		panic(fmt.Sprintf("cowrows: undo token %d not after current token %d", token,
			ul.current.token))
	}
	ul.current = &undoQuantum{token: token}
	ul.quanta = append(ul.quanta, ul.current)
}

// ReleaseUndoToken drops the log for every quantum up to and including
// token; their mutations become permanent.
func (ul *UndoLog) ReleaseUndoToken(token int64) {
	if len(ul.quanta) == 0 || ul.quanta[0].token > token {
		panic(fmt.Sprintf("cowrows: release of unknown undo token %d", token))
	}

	for len(ul.quanta) > 0 && ul.quanta[0].token <= token {
		uq := ul.quanta[0]
		ul.quanta = ul.quanta[1:]
		for _, ue := range uq.entries {
			ue.release()
		}
		if uq == ul.current {
			ul.current = nil
		}
	}
}

// UndoUndoToken reverses the mutations of every quantum from the newest back
// to and including token.
func (ul *UndoLog) UndoUndoToken(token int64) {
	if len(ul.quanta) == 0 || ul.quanta[len(ul.quanta)-1].token < token {
		panic(fmt.Sprintf("cowrows: undo of unknown undo token %d", token))
	}

	for len(ul.quanta) > 0 && ul.quanta[len(ul.quanta)-1].token >= token {
		uq := ul.quanta[len(ul.quanta)-1]
		ul.quanta = ul.quanta[:len(ul.quanta)-1]
		for edx := len(uq.entries) - 1; edx >= 0; edx-- {
			uq.entries[edx].undo()
		}
		if uq == ul.current {
			ul.current = nil
		}
	}
}

func (ul *UndoLog) logInsert(tbl *Table, ref slab.Ref, key []byte) {
	if ul.current == nil {
		return
	}
	ul.current.entries = append(ul.current.entries, undoEntry{
		tbl:  tbl,
		kind: undoInsert,
		ref:  ref,
		key:  key,
	})
}

// logDelete records a delete whose pre-image is still in the slot; the slot
// is finalized at release. With no current quantum the slot is finalized
// immediately.
func (ul *UndoLog) logDelete(tbl *Table, ref slab.Ref, key []byte) {
	if ul.current == nil {
		tbl.finishDelete(ref)
		return
	}
	ul.current.entries = append(ul.current.entries, undoEntry{
		tbl:  tbl,
		kind: undoDelete,
		ref:  ref,
		key:  key,
	})
}

func (ul *UndoLog) logUpdate(tbl *Table, ref slab.Ref, key, preKey, prePayload []byte) {
	if ul.current == nil {
		return
	}
	ul.current.entries = append(ul.current.entries, undoEntry{
		tbl:        tbl,
		kind:       undoUpdate,
		ref:        ref,
		key:        key,
		preKey:     preKey,
		prePayload: prePayload,
	})
}

// rehome fixes up slot refs when compaction relocates a tuple that open
// quanta still reference.
func (ul *UndoLog) rehome(tbl *Table, from, to slab.Ref) {
	for _, uq := range ul.quanta {
		for edx := range uq.entries {
			ue := &uq.entries[edx]
			if ue.tbl == tbl && ue.ref == from {
				ue.ref = to
			}
		}
	}
}

func (ue *undoEntry) release() {
	switch ue.kind {
	case undoInsert, undoUpdate:
		// Nothing to do: the mutation is already in place.
	case undoDelete:
		ue.tbl.finishDelete(ue.ref)
	default:
		panic(fmt.Sprintf("cowrows: unexpected undo entry kind: %d", ue.kind))
	}
}

func (ue *undoEntry) undo() {
	switch ue.kind {
	case undoInsert:
		ue.tbl.undoInsert(ue.ref, ue.key)
	case undoDelete:
		ue.tbl.undoDelete(ue.ref, ue.key)
	case undoUpdate:
		ue.tbl.undoUpdate(ue.ref, ue.key, ue.preKey, ue.prePayload)
	default:
		panic(fmt.Sprintf("cowrows: unexpected undo entry kind: %d", ue.kind))
	}
}
