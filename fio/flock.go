package fio

import (
	"github.com/gofrs/flock"
)

const flockSuffix = ".lock"

// NewFlock returns the advisory lock guarding a savestate file. Writable
// opens take it so two processes cannot append to the same log.
func NewFlock(file string) *flock.Flock {
	return flock.New(file + flockSuffix)
}
