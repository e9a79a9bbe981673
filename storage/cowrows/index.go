package cowrows

import (
	"bytes"
	"fmt"

	"github.com/google/btree"

	"github.com/leftmike/cowrows/storage/slab"
)

type pkItem struct {
	key []byte
	ref slab.Ref
}

func (pi pkItem) Less(item btree.Item) bool {
	return bytes.Compare(pi.key, item.(pkItem).key) < 0
}

// pkIndex is the balanced tree primary key index; it maps encoded key bytes
// to tuple slot refs and is kept atomic with table mutations.
type pkIndex struct {
	tree *btree.BTree
}

func newPKIndex() *pkIndex {
	return &pkIndex{
		tree: btree.New(16),
	}
}

func (pk *pkIndex) contains(key []byte) bool {
	return pk.tree.Has(pkItem{key: key})
}

func (pk *pkIndex) insert(key []byte, ref slab.Ref) {
	if pk.tree.ReplaceOrInsert(pkItem{key: key, ref: ref}) != nil {
		panic(fmt.Sprintf("cowrows: index: duplicate key inserted at %s", ref))
	}
}

func (pk *pkIndex) remove(key []byte) slab.Ref {
	item := pk.tree.Delete(pkItem{key: key})
	if item == nil {
		panic("cowrows: index: removing missing key")
	}
	return item.(pkItem).ref
}

func (pk *pkIndex) lookup(key []byte) (slab.Ref, bool) {
	item := pk.tree.Get(pkItem{key: key})
	if item == nil {
		return slab.Ref{}, false
	}
	return item.(pkItem).ref, true
}

// rehome points an existing key at a relocated slot; compaction uses it.
func (pk *pkIndex) rehome(key []byte, ref slab.Ref) {
	if pk.tree.ReplaceOrInsert(pkItem{key: key, ref: ref}) == nil {
		panic(fmt.Sprintf("cowrows: index: rehoming missing key to %s", ref))
	}
}

func (pk *pkIndex) length() int {
	return pk.tree.Len()
}
