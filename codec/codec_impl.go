package codec

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/savestate/savestate/model"
)

type CodecImpl struct{}

func NewCodecImpl() *CodecImpl {
	return &CodecImpl{}
}

/*
default codec:
	- header: keySize(4) + valueSize(4), big-endian; valueSize 0xFFFFFFFF marks a tombstone
	- frame: header | key | value | crc
	crc is CRC-32 (IEEE) over header, key and value, stored big-endian
*/

// MarshalRecord return the framed record and its size
func (cl *CodecImpl) MarshalRecord(record *model.Record) ([]byte, int64, error) {
	size := model.HeaderSize + len(record.Key) + model.ChecksumSize
	if !record.IsDelete {
		size += len(record.Value)
	}

	data := make([]byte, 0, size)

	var header [model.HeaderSize]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(record.Key)))
	if record.IsDelete {
		binary.BigEndian.PutUint32(header[4:], model.TombstoneSentinel)
	} else {
		binary.BigEndian.PutUint32(header[4:], uint32(len(record.Value)))
	}

	data = append(data, header[:]...)
	data = append(data, record.Key...)
	if !record.IsDelete {
		data = append(data, record.Value...)
	}

	record.Crc = crc32.ChecksumIEEE(data)
	data = binary.BigEndian.AppendUint32(data, record.Crc)

	return data, int64(len(data)), nil
}

func (cl *CodecImpl) UnmarshalRecordHeader(headerData []byte, header *model.RecordHeader) error {
	if len(headerData) < model.HeaderSize {
		return io.ErrUnexpectedEOF
	}

	header.KeySize = binary.BigEndian.Uint32(headerData[:4])

	valueSize := binary.BigEndian.Uint32(headerData[4:8])
	header.IsDelete = valueSize == model.TombstoneSentinel
	if header.IsDelete {
		header.ValueSize = 0
	} else {
		header.ValueSize = valueSize
	}

	return nil
}

func (cl *CodecImpl) Verify(full []byte) bool {
	if len(full) < model.MinRecordSize {
		return false
	}
	stored := binary.BigEndian.Uint32(full[len(full)-model.ChecksumSize:])
	return crc32.ChecksumIEEE(full[:len(full)-model.ChecksumSize]) == stored
}
