package keydir

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/savestate/savestate/model"
)

func pos(offset int64) *model.RecordPos {
	return &model.RecordPos{Offset: offset, Size: 1}
}

func TestOrdered_PutGet(t *testing.T) {
	kd := NewOrdered()

	assert.True(t, kd.Put([]byte("a"), pos(1)))
	assert.False(t, kd.Put([]byte("a"), pos(2)))

	got := kd.Get([]byte("a"))
	assert.NotNil(t, got)
	assert.Equal(t, int64(2), got.Offset)
	assert.Nil(t, kd.Get([]byte("missing")))
	assert.Equal(t, 1, kd.Size())
}

func TestOrdered_Delete(t *testing.T) {
	kd := NewOrdered()

	kd.Put([]byte("a"), pos(1))
	assert.True(t, kd.Delete([]byte("a")))
	assert.False(t, kd.Delete([]byte("a")))
	assert.False(t, kd.Has([]byte("a")))
	assert.Equal(t, 0, kd.Size())
}

func TestOrdered_InsertionOrder(t *testing.T) {
	kd := NewOrdered()

	for i := 0; i < 10; i++ {
		kd.Put([]byte(fmt.Sprintf("key-%d", i)), pos(int64(i)))
	}

	it := kd.Iterator(false)
	defer it.Close()

	var keys []string
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	for i, key := range keys {
		assert.Equal(t, fmt.Sprintf("key-%d", i), key)
	}
	assert.Len(t, keys, 10)
}

func TestOrdered_OverwriteKeepsPosition(t *testing.T) {
	kd := NewOrdered()

	kd.Put([]byte("a"), pos(1))
	kd.Put([]byte("b"), pos(2))
	kd.Put([]byte("c"), pos(3))
	kd.Put([]byte("a"), pos(4))

	it := kd.Iterator(false)
	defer it.Close()

	var keys []string
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)
	assert.Equal(t, int64(4), kd.Get([]byte("a")).Offset)
}

func TestOrdered_ReverseIteration(t *testing.T) {
	kd := NewOrdered()

	kd.Put([]byte("a"), pos(1))
	kd.Put([]byte("b"), pos(2))
	kd.Put([]byte("c"), pos(3))

	it := kd.Iterator(true)
	defer it.Close()

	var keys []string
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	assert.Equal(t, []string{"c", "b", "a"}, keys)
}

func TestOrdered_DeletedKeyReinsertsAtEnd(t *testing.T) {
	kd := NewOrdered()

	kd.Put([]byte("a"), pos(1))
	kd.Put([]byte("b"), pos(2))
	kd.Delete([]byte("a"))
	kd.Put([]byte("a"), pos(3))

	it := kd.Iterator(false)
	defer it.Close()

	var keys []string
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	assert.Equal(t, []string{"b", "a"}, keys)
}

func TestOrdered_Clear(t *testing.T) {
	kd := NewOrdered()

	kd.Put([]byte("a"), pos(1))
	kd.Put([]byte("b"), pos(2))
	kd.Clear()

	assert.Equal(t, 0, kd.Size())
	it := kd.Iterator(false)
	defer it.Close()
	it.Rewind()
	assert.False(t, it.Valid())
}
