package model

import (
	"encoding/binary"

	"github.com/savestate/savestate/fio"
)

const (
	FileSuffix = ".savestate"

	fileMagic = "savestate"

	FormatVersion uint16 = 1
	CodecVersion  uint16 = 1

	// FileHeaderSize is magic(9) + format version(2) + codec version(2).
	// The first record starts right after it.
	FileHeaderSize = 13
)

type FileHeader struct {
	Magic         string
	FormatVersion uint16
	CodecVersion  uint16
}

// Valid reports whether the magic matches; version compatibility is the
// caller's call.
func (h *FileHeader) Valid() bool {
	return h.Magic == fileMagic
}

type DataFile struct {
	WriteOffset int64
	IOManager   fio.IOManager
}

func OpenDataFile(ioManager fio.IOManager) (*DataFile, error) {
	size, err := ioManager.Size()
	if err != nil {
		return nil, err
	}
	return &DataFile{
		WriteOffset: size,
		IOManager:   ioManager,
	}, nil
}

// WriteFileHeader stamps a fresh file; only valid at offset zero.
func (df *DataFile) WriteFileHeader() error {
	data := make([]byte, 0, FileHeaderSize)
	data = append(data, fileMagic...)
	data = binary.BigEndian.AppendUint16(data, FormatVersion)
	data = binary.BigEndian.AppendUint16(data, CodecVersion)
	_, err := df.Write(data)
	return err
}

func (df *DataFile) ReadFileHeader() (*FileHeader, error) {
	data, err := df.ReadNBytes(0, FileHeaderSize)
	if err != nil {
		return nil, err
	}
	return &FileHeader{
		Magic:         string(data[:9]),
		FormatVersion: binary.BigEndian.Uint16(data[9:11]),
		CodecVersion:  binary.BigEndian.Uint16(data[11:13]),
	}, nil
}

// Write appends binary data and returns the absolute offset it lands at.
func (df *DataFile) Write(data []byte) (int64, error) {
	offset := df.WriteOffset
	size, err := df.IOManager.Write(data)
	if err != nil {
		return 0, err
	}
	df.WriteOffset += int64(size)
	return offset, nil
}

func (df *DataFile) ReadNBytes(offset, n int64) ([]byte, error) {
	buf := make([]byte, n)
	_, err := df.IOManager.Read(buf, offset)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (df *DataFile) Size() (int64, error) {
	return df.IOManager.Size()
}

func (df *DataFile) Truncate(size int64) error {
	if err := df.IOManager.Truncate(size); err != nil {
		return err
	}
	df.WriteOffset = size
	return nil
}

func (df *DataFile) Sync() error {
	return df.IOManager.Sync()
}

func (df *DataFile) Close() error {
	return df.IOManager.Close()
}
