package fio

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// flushThreshold is how many buffered append bytes accumulate before they
// spill to the kernel.
const flushThreshold = 32 * 1024

var ErrReadOnlyFile = errors.New("fio: file is read-only")

// FileIO is the default implement for IOManager. Appends collect in a tail
// buffer; positional reads transparently serve ranges that have not flushed
// yet, so a record can be read back right after it was written.
type FileIO struct {
	fd       *os.File
	readonly bool

	flushed int64  // bytes handed to the kernel, the buffer starts here
	buf     []byte // pending appends
}

func NewFileIO(file string, readonly bool) (*FileIO, error) {
	flag := os.O_RDWR | os.O_CREATE
	if readonly {
		flag = os.O_RDONLY
	}
	fd, err := os.OpenFile(file, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("fio: open %s: %w", file, err)
	}
	stat, err := fd.Stat()
	if err != nil {
		_ = fd.Close()
		return nil, fmt.Errorf("fio: stat %s: %w", file, err)
	}
	return &FileIO{fd: fd, readonly: readonly, flushed: stat.Size()}, nil
}

// Read fills buf from the given offset without moving the append cursor.
// Reading past the logical end of the file returns io.ErrUnexpectedEOF.
func (f *FileIO) Read(buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("fio: negative offset %d", offset)
	}
	end := offset + int64(len(buf))
	if end > f.flushed+int64(len(f.buf)) {
		return 0, io.ErrUnexpectedEOF
	}

	var n int
	if offset < f.flushed {
		flushedEnd := end
		if flushedEnd > f.flushed {
			flushedEnd = f.flushed
		}
		m, err := f.fd.ReadAt(buf[:flushedEnd-offset], offset)
		n += m
		if err != nil {
			return n, fmt.Errorf("fio: read at %d: %w", offset, err)
		}
	}
	if end > f.flushed {
		start := offset - f.flushed
		if start < 0 {
			start = 0
		}
		n += copy(buf[n:], f.buf[start:end-f.flushed])
	}
	return n, nil
}

// Write appends data to the buffer and reports its length. The data lands at
// the current logical end of the file.
func (f *FileIO) Write(data []byte) (int, error) {
	if f.readonly {
		return 0, ErrReadOnlyFile
	}
	f.buf = append(f.buf, data...)
	if len(f.buf) >= flushThreshold {
		if err := f.flush(); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

func (f *FileIO) flush() error {
	if len(f.buf) == 0 {
		return nil
	}
	if _, err := f.fd.WriteAt(f.buf, f.flushed); err != nil {
		return fmt.Errorf("fio: write at %d: %w", f.flushed, err)
	}
	f.flushed += int64(len(f.buf))
	f.buf = f.buf[:0]
	return nil
}

// Sync flushes the buffer and forces the data onto stable storage.
func (f *FileIO) Sync() error {
	if f.readonly {
		return nil
	}
	if err := f.flush(); err != nil {
		return err
	}
	if err := f.fd.Sync(); err != nil {
		return fmt.Errorf("fio: sync: %w", err)
	}
	return nil
}

func (f *FileIO) Truncate(size int64) error {
	if f.readonly {
		return ErrReadOnlyFile
	}
	if err := f.flush(); err != nil {
		return err
	}
	if err := f.fd.Truncate(size); err != nil {
		return fmt.Errorf("fio: truncate to %d: %w", size, err)
	}
	f.flushed = size
	return nil
}

func (f *FileIO) Size() (int64, error) {
	return f.flushed + int64(len(f.buf)), nil
}

func (f *FileIO) Close() error {
	if !f.readonly {
		if err := f.flush(); err != nil {
			return err
		}
	}
	if err := f.fd.Close(); err != nil {
		return fmt.Errorf("fio: close: %w", err)
	}
	return nil
}
