package repository

import "errors"

// Sentinel errors for the repositories.
var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict means the history index kept changing underneath every
	// attempt to update it.
	ErrConflict  = errors.New("history index update conflicted")
	ErrCorrupted = errors.New("stored document is not valid")
)
