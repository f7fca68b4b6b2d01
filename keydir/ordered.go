package keydir

import (
	"github.com/google/btree"

	"github.com/savestate/savestate/model"
)

var _ Keydir = (*Ordered)(nil)

const defaultDegree = 32

type orderedItem struct {
	seq uint64
	key []byte
	pos *model.RecordPos
}

// Ordered implement the keydir. Lookups go through a plain map; iteration
// order comes from a btree keyed by an insertion sequence, so keys come back
// in the order they were first written. Overwrites keep the original
// sequence and a rewritten key does not move.
type Ordered struct {
	entries map[string]*orderedItem
	order   *btree.BTreeG[*orderedItem]
	nextSeq uint64
}

func NewOrdered() *Ordered {
	return &Ordered{
		entries: make(map[string]*orderedItem),
		order: btree.NewG(defaultDegree, func(a, b *orderedItem) bool {
			return a.seq < b.seq
		}),
	}
}

func (o *Ordered) Put(key []byte, pos *model.RecordPos) bool {
	if item, ok := o.entries[string(key)]; ok {
		item.pos = pos
		return false
	}

	item := &orderedItem{
		seq: o.nextSeq,
		key: append([]byte(nil), key...),
		pos: pos,
	}
	o.nextSeq++
	o.entries[string(item.key)] = item
	o.order.ReplaceOrInsert(item)
	return true
}

func (o *Ordered) Get(key []byte) *model.RecordPos {
	item, ok := o.entries[string(key)]
	if !ok {
		return nil
	}
	return item.pos
}

func (o *Ordered) Delete(key []byte) bool {
	item, ok := o.entries[string(key)]
	if !ok {
		return false
	}
	delete(o.entries, string(key))
	o.order.Delete(item)
	return true
}

func (o *Ordered) Has(key []byte) bool {
	_, ok := o.entries[string(key)]
	return ok
}

func (o *Ordered) Size() int {
	return len(o.entries)
}

func (o *Ordered) Clear() {
	o.entries = make(map[string]*orderedItem)
	o.order.Clear(false)
	o.nextSeq = 0
}

func (o *Ordered) Iterator(reverse bool) Iterator {
	return o.newOrderedIterator(reverse)
}

type orderedIterator struct {
	items  []*orderedItem
	curIdx int
}

func (o *Ordered) newOrderedIterator(reverse bool) *orderedIterator {
	iterator := &orderedIterator{
		items: make([]*orderedItem, 0, o.order.Len()),
	}

	collect := func(item *orderedItem) bool {
		iterator.items = append(iterator.items, item)
		return true
	}

	if reverse {
		o.order.Descend(collect)
	} else {
		o.order.Ascend(collect)
	}

	return iterator
}

func (oi *orderedIterator) Rewind() {
	oi.curIdx = 0
}

func (oi *orderedIterator) Next() {
	oi.curIdx++
}

func (oi *orderedIterator) Valid() bool {
	return oi.curIdx < len(oi.items)
}

func (oi *orderedIterator) Key() []byte {
	return oi.items[oi.curIdx].key
}

func (oi *orderedIterator) Pos() *model.RecordPos {
	return oi.items[oi.curIdx].pos
}

func (oi *orderedIterator) Close() {
	oi.items = nil
}
