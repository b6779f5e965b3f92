package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for missing reports and for reports the
	// requester may not see.
	ErrNotFound = errors.New("report not found")
	// ErrCorrupt marks a row whose document file is gone.
	ErrCorrupt = errors.New("report document missing")
)

// StorageError wraps a persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
