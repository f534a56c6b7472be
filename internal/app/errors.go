package service

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks caller mistakes: a missing file location, a file
// that does not exist, an unusable CSV or an empty roster mapping.
var ErrInvalidInput = errors.New("invalid input")

// StorageError is returned when the configured blob store cannot be opened.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("open %s storage: %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func invalidInput(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}
