package codec

import "github.com/savestate/savestate/model"

type Codec interface {
	// MarshalRecord returns the full on-disk frame and its size. It fills
	// record.Crc with the computed checksum. Tombstones (record.IsDelete)
	// are framed with the sentinel value size and no value bytes.
	MarshalRecord(*model.Record) ([]byte, int64, error)

	// UnmarshalRecordHeader decodes the 8-byte size prefix.
	UnmarshalRecordHeader([]byte, *model.RecordHeader) error

	// Verify recomputes the checksum of a complete frame and compares it
	// to the trailing four bytes.
	Verify([]byte) bool
}
