package savestate

import (
	"os"
	"path/filepath"

	"github.com/savestate/savestate/model"
)

// Compact rewrites the file so it holds exactly one record per live key,
// then atomically swaps it in place of the original.
func (db *DB) Compact() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.writable(); err != nil {
		return err
	}
	return db.compact()
}

type rewrittenEntry struct {
	key []byte
	pos *model.RecordPos
}

func (db *DB) compact() error {
	dir := filepath.Dir(db.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(db.path)+".compact-*")
	if err != nil {
		return wrapIOErr(err)
	}
	tmpPath := tmp.Name()
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return wrapIOErr(err)
	}

	entries, err := db.writeLiveTo(tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	// Point of no return: replace the original file on disk, then swap the
	// descriptor and retarget the keydir.
	if err = db.dataFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return wrapIOErr(err)
	}
	if err = os.Rename(tmpPath, db.path); err != nil {
		_ = os.Remove(tmpPath)
		if reopenErr := db.reopenDataFile(); reopenErr != nil {
			return reopenErr
		}
		return wrapIOErr(err)
	}
	if err = db.reopenDataFile(); err != nil {
		return err
	}

	for _, entry := range entries {
		db.options.keydir.Put(entry.key, entry.pos)
	}

	db.logger.Debug().
		Int("live_keys", len(entries)).
		Str("path", db.path).
		Msg("compaction finished")
	db.metrics.incCompactions()
	return nil
}

func (db *DB) reopenDataFile() error {
	ioManager, err := db.options.ioManagerCreator(db.path, false)
	if err != nil {
		return wrapIOErr(err)
	}
	dataFile, err := model.OpenDataFile(ioManager)
	if err != nil {
		_ = ioManager.Close()
		return wrapIOErr(err)
	}
	db.dataFile = dataFile
	return nil
}

// writeLiveTo streams every live record, in keydir order, into a fresh file
// at path and returns where each record's value landed.
func (db *DB) writeLiveTo(path string) ([]rewrittenEntry, error) {
	ioManager, err := db.options.ioManagerCreator(path, false)
	if err != nil {
		return nil, wrapIOErr(err)
	}
	dst, err := model.OpenDataFile(ioManager)
	if err != nil {
		_ = ioManager.Close()
		return nil, wrapIOErr(err)
	}
	defer func() {
		_ = dst.Close()
	}()

	if dst.WriteOffset > 0 {
		if err = dst.Truncate(0); err != nil {
			return nil, wrapIOErr(err)
		}
	}
	if err = dst.WriteFileHeader(); err != nil {
		return nil, wrapIOErr(err)
	}

	it := db.options.keydir.Iterator(false)
	defer it.Close()

	entries := make([]rewrittenEntry, 0, db.options.keydir.Size())
	for it.Rewind(); it.Valid(); it.Next() {
		key := append([]byte(nil), it.Key()...)
		value, err := db.readValue(key, it.Pos())
		if err != nil {
			return nil, err
		}

		record := &model.Record{Key: key, Value: value}
		data, _, err := db.options.codec.MarshalRecord(record)
		if err != nil {
			return nil, err
		}
		offset, err := dst.Write(data)
		if err != nil {
			return nil, wrapIOErr(err)
		}

		entries = append(entries, rewrittenEntry{
			key: key,
			pos: &model.RecordPos{
				Offset: offset + model.HeaderSize + int64(len(key)),
				Size:   uint32(len(value)),
				Crc:    record.Crc,
			},
		})
	}

	if err = dst.Sync(); err != nil {
		return nil, wrapIOErr(err)
	}
	return entries, nil
}

// CopyTo writes the live contents into a fresh file at path, in insertion
// order. The store keeps using its original file.
func (db *DB) CopyTo(path string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}

	path = AddFileSuffix(path)
	if samePath(path, db.path) {
		return ErrInvalidArgument
	}

	if _, err := db.writeLiveTo(path); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}
