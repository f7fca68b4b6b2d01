package savestate

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/savestate/savestate/fio"
	"github.com/savestate/savestate/keydir"
	"github.com/savestate/savestate/model"
)

// Mode controls how Open treats the file on disk.
type Mode byte

const (
	// ModeRead opens an existing file for reading only.
	ModeRead Mode = 'r'
	// ModeWrite opens an existing file for reading and writing.
	ModeWrite Mode = 'w'
	// ModeCreate opens for reading and writing, creating the file if missing.
	ModeCreate Mode = 'c'
	// ModeNew always starts from an empty file, truncating any existing one.
	ModeNew Mode = 'n'
)

// DB is a single-file append-only key-value store. Keys and values are
// opaque byte strings; every live key is held in the in-memory keydir.
// It is not safe for use from multiple goroutines or processes.
type DB struct {
	mu sync.Mutex

	path     string
	mode     Mode
	dataFile *model.DataFile
	fileLock *flock.Flock

	options *options
	metrics *metrics
	logger  zerolog.Logger

	closed bool
}

type KV struct {
	Key   []byte
	Value []byte
}

// Open opens the savestate file at path. The ".savestate" suffix is appended
// when missing. Modes 'r' and 'w' require the file to exist.
func Open(path string, mode Mode, opts ...Option) (*DB, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	switch mode {
	case ModeRead, ModeWrite, ModeCreate, ModeNew:
	default:
		return nil, ErrInvalidArgument
	}

	path = AddFileSuffix(path)

	if mode == ModeRead || mode == ModeWrite {
		stat, err := os.Stat(path)
		if err != nil || stat.IsDir() {
			return nil, ErrFileNotFound
		}
	}

	db := &DB{
		path:    path,
		mode:    mode,
		options: o,
		logger:  o.logger,
	}
	if o.registerer != nil {
		db.metrics = newMetrics(o.registerer)
	}

	if mode != ModeRead && o.fileLock {
		if err := db.acquireFileLock(); err != nil {
			return nil, err
		}
	}

	if err := db.openDataFile(); err != nil {
		db.releaseFileLock()
		return nil, err
	}

	if err := db.load(); err != nil {
		_ = db.dataFile.Close()
		db.releaseFileLock()
		return nil, err
	}

	db.metrics.setLiveKeys(o.keydir.Size())
	return db, nil
}

func (db *DB) acquireFileLock() error {
	fl := fio.NewFlock(db.path)
	locked, err := fl.TryLock()
	if err != nil {
		return wrapIOErr(err)
	}
	if !locked {
		return ErrDatabaseInUse
	}
	db.fileLock = fl
	return nil
}

func (db *DB) releaseFileLock() {
	if db.fileLock != nil {
		_ = db.fileLock.Unlock()
		db.fileLock = nil
	}
}

func (db *DB) openDataFile() error {
	ioManager, err := db.options.ioManagerCreator(db.path, db.mode == ModeRead)
	if err != nil {
		return wrapIOErr(err)
	}

	dataFile, err := model.OpenDataFile(ioManager)
	if err != nil {
		_ = ioManager.Close()
		return wrapIOErr(err)
	}

	if db.mode == ModeNew && dataFile.WriteOffset > 0 {
		if err = dataFile.Truncate(0); err != nil {
			_ = dataFile.Close()
			return wrapIOErr(err)
		}
	}

	if dataFile.WriteOffset == 0 {
		if db.mode == ModeRead {
			_ = dataFile.Close()
			return ErrBadMagic
		}
		if err = dataFile.WriteFileHeader(); err != nil {
			_ = dataFile.Close()
			return wrapIOErr(err)
		}
	} else {
		header, err := dataFile.ReadFileHeader()
		if err != nil {
			_ = dataFile.Close()
			return ErrBadMagic
		}
		if !header.Valid() {
			_ = dataFile.Close()
			return ErrBadMagic
		}
		if header.FormatVersion != model.FormatVersion || header.CodecVersion != model.CodecVersion {
			_ = dataFile.Close()
			return ErrBadVersion
		}
	}

	db.dataFile = dataFile
	return nil
}

// Get return the current value bytes for key.
func (db *DB) Get(key []byte) ([]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, ErrClosed
	}
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	pos := db.options.keydir.Get(key)
	if pos == nil {
		return nil, ErrKeyNotFound
	}

	db.metrics.incGets()
	return db.readValue(key, pos)
}

// readValue fetches the value bytes a keydir entry points at. With checksum
// verification on, the whole record is read back and checked.
func (db *DB) readValue(key []byte, pos *model.RecordPos) ([]byte, error) {
	if !db.options.verifyChecksums {
		value, err := db.dataFile.ReadNBytes(pos.Offset, int64(pos.Size))
		if err != nil {
			return nil, wrapReadErr(err)
		}
		return value, nil
	}

	recordStart := pos.Offset - int64(len(key)) - model.HeaderSize
	recordLen := model.HeaderSize + int64(len(key)) + int64(pos.Size) + model.ChecksumSize
	full, err := db.dataFile.ReadNBytes(recordStart, recordLen)
	if err != nil {
		return nil, wrapReadErr(err)
	}
	if !db.options.codec.Verify(full) {
		return nil, ErrChecksumMismatch
	}

	value := full[model.HeaderSize+len(key) : len(full)-model.ChecksumSize]
	return append([]byte(nil), value...), nil
}

// Put appends a record for key and points the keydir at it.
func (db *DB) Put(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.writable(); err != nil {
		return err
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}

	record := &model.Record{Key: key, Value: value}
	data, _, err := db.options.codec.MarshalRecord(record)
	if err != nil {
		return err
	}

	offset, err := db.dataFile.Write(data)
	if err != nil {
		return wrapIOErr(err)
	}

	pos := &model.RecordPos{
		Offset: offset + model.HeaderSize + int64(len(key)),
		Size:   uint32(len(value)),
		Crc:    record.Crc,
	}
	db.options.keydir.Put(key, pos)

	db.metrics.incPuts()
	db.metrics.setLiveKeys(db.options.keydir.Size())
	return nil
}

// Delete appends a tombstone for key and drops it from the keydir.
func (db *DB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.delete(key)
}

func (db *DB) delete(key []byte) error {
	if err := db.writable(); err != nil {
		return err
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if !db.options.keydir.Has(key) {
		return ErrKeyNotFound
	}

	record := &model.Record{Key: key, IsDelete: true}
	data, _, err := db.options.codec.MarshalRecord(record)
	if err != nil {
		return err
	}

	if _, err = db.dataFile.Write(data); err != nil {
		return wrapIOErr(err)
	}
	db.options.keydir.Delete(key)

	db.metrics.incDeletes()
	db.metrics.setLiveKeys(db.options.keydir.Size())
	return nil
}

// Has reports whether key is live. It never touches the disk.
func (db *DB) Has(key []byte) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return false
	}
	return db.options.keydir.Has(key)
}

// Len return the number of live keys.
func (db *DB) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return 0
	}
	return db.options.keydir.Size()
}

// Pop removes key and returns the value it held.
func (db *DB) Pop(key []byte) ([]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, ErrClosed
	}
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	pos := db.options.keydir.Get(key)
	if pos == nil {
		return nil, ErrKeyNotFound
	}
	value, err := db.readValue(key, pos)
	if err != nil {
		return nil, err
	}
	if err = db.delete(key); err != nil {
		return nil, err
	}
	return value, nil
}

// PopItem removes and returns the most recently inserted pair.
func (db *DB) PopItem() (*KV, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, ErrClosed
	}

	it := db.options.keydir.Iterator(true)
	defer it.Close()
	it.Rewind()
	if !it.Valid() {
		return nil, ErrEmptyStore
	}

	key := append([]byte(nil), it.Key()...)
	value, err := db.readValue(key, it.Pos())
	if err != nil {
		return nil, err
	}
	if err = db.delete(key); err != nil {
		return nil, err
	}
	return &KV{Key: key, Value: value}, nil
}

// SetDefault return the value for key, inserting value when key is absent.
func (db *DB) SetDefault(key, value []byte) ([]byte, error) {
	current, err := db.Get(key)
	if err == nil {
		return current, nil
	}
	if err != ErrKeyNotFound {
		return nil, err
	}
	if err = db.Put(key, value); err != nil {
		return nil, err
	}
	return value, nil
}

// Update writes every pair in order.
func (db *DB) Update(items []KV) error {
	for _, item := range items {
		if err := db.Put(item.Key, item.Value); err != nil {
			return err
		}
	}
	return nil
}

// Clear deletes every live key.
func (db *DB) Clear() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.writable(); err != nil {
		return err
	}

	it := db.options.keydir.Iterator(false)
	keys := make([][]byte, 0, db.options.keydir.Size())
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	it.Close()

	for _, key := range keys {
		if err := db.delete(key); err != nil {
			return err
		}
	}
	return nil
}

// Keys return all live keys in insertion order.
func (db *DB) Keys() [][]byte {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}

	it := db.options.keydir.Iterator(false)
	defer it.Close()
	keys := make([][]byte, 0, db.options.keydir.Size())
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	return keys
}

// Values return all live values in key-insertion order.
func (db *DB) Values() ([][]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}

	it := db.options.keydir.Iterator(false)
	defer it.Close()
	values := make([][]byte, 0, db.options.keydir.Size())
	for it.Rewind(); it.Valid(); it.Next() {
		value, err := db.readValue(it.Key(), it.Pos())
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

// Items return all live pairs in key-insertion order.
func (db *DB) Items() ([]KV, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}
	return db.items()
}

func (db *DB) items() ([]KV, error) {
	it := db.options.keydir.Iterator(false)
	defer it.Close()
	items := make([]KV, 0, db.options.keydir.Size())
	for it.Rewind(); it.Valid(); it.Next() {
		key := append([]byte(nil), it.Key()...)
		value, err := db.readValue(key, it.Pos())
		if err != nil {
			return nil, err
		}
		items = append(items, KV{Key: key, Value: value})
	}
	return items, nil
}

// Iterator walks live keys in insertion order, or in reverse when asked.
// Values are read from disk at call time, never cached.
func (db *DB) Iterator(reverse bool) *Iterator {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return &Iterator{db: db}
	}
	return &Iterator{db: db, inner: db.options.keydir.Iterator(reverse)}
}

// Sync flushes buffered writes and forces them onto stable storage.
func (db *DB) Sync() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}
	if db.mode == ModeRead {
		return nil
	}
	if err := db.dataFile.Sync(); err != nil {
		return wrapIOErr(err)
	}
	return nil
}

// Close syncs and releases the file. When the store was opened with
// WithCompactOnClose, the file is compacted first; a compaction error is
// reported but the descriptor is still released.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}

	var compactErr error
	if db.options.compactOnClose && db.mode != ModeRead {
		compactErr = db.compact()
	}

	var syncErr error
	if db.mode != ModeRead {
		syncErr = db.dataFile.Sync()
	}
	closeErr := db.dataFile.Close()

	db.releaseFileLock()
	db.closed = true

	if compactErr != nil {
		return compactErr
	}
	if syncErr != nil {
		return wrapIOErr(syncErr)
	}
	if closeErr != nil {
		return wrapIOErr(closeErr)
	}
	return nil
}

// Path return the absolute path of the underlying file.
func (db *DB) Path() string {
	abs, err := filepath.Abs(db.path)
	if err != nil {
		return db.path
	}
	return abs
}

func (db *DB) writable() error {
	if db.closed {
		return ErrClosed
	}
	if db.mode == ModeRead {
		return ErrReadOnly
	}
	return nil
}

// AddFileSuffix appends the savestate suffix when path does not carry it.
func AddFileSuffix(path string) string {
	if strings.HasSuffix(strings.ToLower(path), model.FileSuffix) {
		return path
	}
	return path + model.FileSuffix
}

// Iterator reads one live pair at a time in keydir order.
type Iterator struct {
	db    *DB
	inner keydir.Iterator
}

func (it *Iterator) Rewind() {
	if it.inner != nil {
		it.inner.Rewind()
	}
}

func (it *Iterator) Next() {
	if it.inner != nil {
		it.inner.Next()
	}
}

func (it *Iterator) Valid() bool {
	return it.inner != nil && it.inner.Valid()
}

func (it *Iterator) Key() []byte {
	return it.inner.Key()
}

// Value fetches the current value from disk.
func (it *Iterator) Value() ([]byte, error) {
	it.db.mu.Lock()
	defer it.db.mu.Unlock()
	if it.db.closed {
		return nil, ErrClosed
	}
	return it.db.readValue(it.inner.Key(), it.inner.Pos())
}

func (it *Iterator) Close() {
	if it.inner != nil {
		it.inner.Close()
	}
}
