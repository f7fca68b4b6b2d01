package model

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savestate/savestate/fio"
)

func newTestDataFile(t *testing.T) *DataFile {
	t.Helper()
	ioManager, err := fio.NewFileIO(filepath.Join(t.TempDir(), "data"), false)
	require.Nil(t, err)
	df, err := OpenDataFile(ioManager)
	require.Nil(t, err)
	t.Cleanup(func() {
		_ = df.Close()
	})
	return df
}

func TestDataFile_WriteTracksOffset(t *testing.T) {
	df := newTestDataFile(t)

	offset, err := df.Write([]byte("hello"))
	assert.Nil(t, err)
	assert.Equal(t, int64(0), offset)

	offset, err = df.Write([]byte("world"))
	assert.Nil(t, err)
	assert.Equal(t, int64(5), offset)
	assert.Equal(t, int64(10), df.WriteOffset)

	data, err := df.ReadNBytes(5, 5)
	assert.Nil(t, err)
	assert.Equal(t, []byte("world"), data)
}

func TestDataFile_FileHeaderRoundTrip(t *testing.T) {
	df := newTestDataFile(t)

	require.Nil(t, df.WriteFileHeader())
	assert.Equal(t, int64(FileHeaderSize), df.WriteOffset)

	header, err := df.ReadFileHeader()
	assert.Nil(t, err)
	assert.True(t, header.Valid())
	assert.Equal(t, FormatVersion, header.FormatVersion)
	assert.Equal(t, CodecVersion, header.CodecVersion)
}

func TestDataFile_Truncate(t *testing.T) {
	df := newTestDataFile(t)

	_, err := df.Write([]byte("abcdef"))
	require.Nil(t, err)
	require.Nil(t, df.Truncate(3))
	assert.Equal(t, int64(3), df.WriteOffset)

	size, err := df.Size()
	assert.Nil(t, err)
	assert.Equal(t, int64(3), size)
}

func TestRecordHeader_RecordLen(t *testing.T) {
	live := &RecordHeader{KeySize: 3, ValueSize: 5}
	assert.Equal(t, int64(8+3+5+4), live.RecordLen())

	tombstone := &RecordHeader{KeySize: 3, IsDelete: true}
	assert.Equal(t, int64(8+3+4), tombstone.RecordLen())
}
