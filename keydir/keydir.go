package keydir

import "github.com/savestate/savestate/model"

// Keydir defined the in-memory index interface
// you can use some other data structure once you implement this interface,
// as long as it keeps keys in first-insertion order
type Keydir interface {
	// Put reports whether the key was new.
	Put(key []byte, pos *model.RecordPos) bool
	Get(key []byte) *model.RecordPos
	Delete(key []byte) bool
	Has(key []byte) bool
	Size() int
	Iterator(reverse bool) Iterator
	Clear()
}

type Iterator interface {
	Rewind()
	Next()
	Valid() bool
	Key() []byte
	Pos() *model.RecordPos
	Close()
}
