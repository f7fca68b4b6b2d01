package savestate

import (
	"encoding/binary"

	"github.com/savestate/savestate/model"
)

// load scans the file once at open and rebuilds the keydir. Trailing
// partial records are dropped; a corrupted record mid-file triggers a
// byte-by-byte salvage scan for the next valid record boundary. Structural
// problems are repaired (or skipped, read-only), never surfaced.
func (db *DB) load() error {
	fileSize, err := db.dataFile.Size()
	if err != nil {
		return wrapIOErr(err)
	}

	kd := db.options.keydir
	var header model.RecordHeader

	offset := int64(model.FileHeaderSize)
	truncateTo := int64(-1)

	for offset < fileSize {
		if fileSize-offset < model.MinRecordSize {
			db.logger.Warn().
				Int64("offset", offset).
				Msg("partial record header at tail, dropping")
			truncateTo = offset
			break
		}

		headerData, err := db.dataFile.ReadNBytes(offset, model.HeaderSize)
		if err != nil {
			return wrapReadErr(err)
		}
		if err = db.options.codec.UnmarshalRecordHeader(headerData, &header); err != nil {
			return err
		}

		// A zero key size can never be written, so the sizes themselves
		// are corrupt. Look for the next plausible record.
		if header.KeySize == 0 {
			next, found := db.salvage(offset+1, fileSize)
			if !found {
				db.logger.Warn().
					Int64("offset", offset).
					Msg("corrupt record sizes, rest of file unrecoverable")
				truncateTo = offset
				break
			}
			db.logger.Warn().
				Int64("offset", offset).
				Int64("resumed_at", next).
				Msg("corrupt record sizes, salvaged")
			offset = next
			continue
		}

		recordLen := header.RecordLen()
		if offset+recordLen > fileSize {
			db.logger.Warn().
				Int64("offset", offset).
				Msg("partial record at tail, dropping")
			truncateTo = offset
			break
		}

		full, err := db.dataFile.ReadNBytes(offset, recordLen)
		if err != nil {
			return wrapReadErr(err)
		}

		// With read-time verification on, integrity is re-checked on every
		// Get, so a bit flip inside a well-framed record surfaces there as
		// a checksum error instead of silently dropping the key here.
		if !db.options.verifyChecksums && !db.options.codec.Verify(full) {
			next, found := db.salvage(offset+1, fileSize)
			if !found {
				db.logger.Warn().
					Int64("offset", offset).
					Msg("corrupt record, rest of file unrecoverable")
				truncateTo = offset
				break
			}
			db.logger.Warn().
				Int64("offset", offset).
				Int64("resumed_at", next).
				Msg("corrupt record, salvaged")
			offset = next
			continue
		}

		key := append([]byte(nil), full[model.HeaderSize:model.HeaderSize+int64(header.KeySize)]...)
		if header.IsDelete {
			kd.Delete(key)
		} else {
			kd.Put(key, &model.RecordPos{
				Offset: offset + model.HeaderSize + int64(header.KeySize),
				Size:   header.ValueSize,
				Crc:    binary.BigEndian.Uint32(full[len(full)-model.ChecksumSize:]),
			})
		}

		offset += recordLen
	}

	if truncateTo >= 0 && db.mode != ModeRead {
		if err := db.dataFile.Truncate(truncateTo); err != nil {
			return wrapIOErr(err)
		}
	}
	return nil
}

// salvage scans forward one byte at a time, reinterpreting the bytes at each
// position as a record header and accepting the first candidate whose
// checksum verifies.
func (db *DB) salvage(from, fileSize int64) (int64, bool) {
	var header model.RecordHeader

	for offset := from; offset+model.MinRecordSize <= fileSize; offset++ {
		headerData, err := db.dataFile.ReadNBytes(offset, model.HeaderSize)
		if err != nil {
			return 0, false
		}
		if err = db.options.codec.UnmarshalRecordHeader(headerData, &header); err != nil {
			return 0, false
		}
		if header.KeySize == 0 {
			continue
		}

		recordLen := header.RecordLen()
		if offset+recordLen > fileSize {
			continue
		}

		full, err := db.dataFile.ReadNBytes(offset, recordLen)
		if err != nil {
			return 0, false
		}
		if db.options.codec.Verify(full) {
			return offset, true
		}
	}
	return 0, false
}
