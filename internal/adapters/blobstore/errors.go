package blobstore

import "errors"

// Sentinel errors for the blob store.
var (
	ErrNotFound           = errors.New("object not found")
	ErrPreconditionFailed = errors.New("generation precondition failed")
	ErrClosed             = errors.New("store closed")
)
