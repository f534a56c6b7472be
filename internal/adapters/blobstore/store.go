// Package blobstore provides path-addressed object storage with optional
// generation preconditions, backed by memory, GCS, SQL databases or MongoDB.
package blobstore

import (
	"context"
	"path"
	"strings"
	"time"
)

// Attrs describes a stored object.
type Attrs struct {
	Path        string
	URL         string
	Size        int64
	ContentType string
	// Generation increases on every write; 0 means the object does not exist.
	Generation int64
	Updated    time.Time
}

// Store is the object storage contract used by the repositories.
type Store interface {
	// Head returns object metadata or ErrNotFound.
	Head(ctx context.Context, path string) (Attrs, error)
	// Read returns the object body or ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, Attrs, error)
	// Put writes data at path. With IfGenerationMatch the write only
	// succeeds when the stored generation equals the given one, otherwise
	// ErrPreconditionFailed is returned.
	Put(ctx context.Context, path string, data []byte, opts ...PutOption) (Attrs, error)
	// List returns the objects under prefix ordered by path.
	List(ctx context.Context, prefix string) ([]Attrs, error)
	Close() error
}

// PutOptions collects per-write settings.
type PutOptions struct {
	ContentType  string
	IfGeneration int64
	HasCondition bool
}

// PutOption configures a single Put.
type PutOption func(*PutOptions)

// WithContentType overrides the content type derived from the extension.
func WithContentType(ct string) PutOption {
	return func(o *PutOptions) {
		if ct != "" {
			o.ContentType = ct
		}
	}
}

// IfGenerationMatch makes the write conditional on the stored generation.
// Generation 0 requires that the object does not exist yet.
func IfGenerationMatch(gen int64) PutOption {
	return func(o *PutOptions) {
		o.IfGeneration = gen
		o.HasCondition = true
	}
}

// ApplyPutOptions resolves options for p.
func ApplyPutOptions(p string, opts []PutOption) PutOptions {
	o := PutOptions{ContentType: ContentTypeFor(p)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ContentTypeFor derives a content type from the path extension.
func ContentTypeFor(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".yaml", ".yml":
		return "application/yaml"
	default:
		return "application/octet-stream"
	}
}
