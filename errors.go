package savestate

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrKeyNotFound  = addPrefix("key not found")
	ErrFileNotFound = addPrefix("no such savestate file")
	ErrClosed       = addPrefix("savestate is closed")
	ErrReadOnly     = addPrefix("savestate is open read-only")
	ErrEmptyKey     = addPrefix("the key is empty")
	ErrEmptyStore   = addPrefix("savestate is empty")

	ErrInvalidArgument  = addPrefix("invalid argument")
	ErrChecksumMismatch = addPrefix("record checksum mismatch")
	ErrShortRead        = addPrefix("read past end of file")
	ErrDatabaseInUse    = addPrefix("savestate is locked by another process")

	ErrBadMagic   = addPrefix("not a savestate file")
	ErrBadVersion = addPrefix("incompatible savestate file version")
)

func addPrefix(errStr string) error {
	return fmt.Errorf("savestate err: %s", errStr)
}

func wrapIOErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("savestate err: io failure: %w", err)
}

func wrapReadErr(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrShortRead
	}
	return wrapIOErr(err)
}
