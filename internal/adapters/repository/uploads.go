package repository

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/nudge/internal/adapters/blobstore"
	"github.com/okian/nudge/internal/domain/types"
)

// UploadsDir is the prefix of raw uploaded CSV files.
const UploadsDir = "uploads/"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`) //nolint:gochecknoglobals // compiled once

// Uploads keeps raw CSV files under uploads/ with a unique prefix.
type Uploads struct {
	store blobstore.Store
}

// NewUploads creates an upload repository over store.
func NewUploads(store blobstore.Store) *Uploads {
	return &Uploads{store: store}
}

// SanitizeName reduces a client file name to a safe object name ending in
// .csv.
func SanitizeName(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	base = strings.Trim(unsafeName.ReplaceAllString(base, "_"), "._")
	if base == "" {
		base = "upload"
	}
	if !strings.EqualFold(path.Ext(base), ".csv") {
		base += ".csv"
	}
	return base
}

// Save implements UploadStore.
func (u *Uploads) Save(ctx context.Context, name string, data []byte) (types.UploadedFile, error) {
	location := UploadsDir + uuid.NewString() + "-" + SanitizeName(name)
	attrs, err := u.store.Put(ctx, location, data, blobstore.WithContentType("text/csv"))
	if err != nil {
		return types.UploadedFile{}, fmt.Errorf("store upload %s: %w", location, err)
	}
	return types.UploadedFile{
		Location:   attrs.Path,
		URL:        attrs.URL,
		Size:       attrs.Size,
		UploadedAt: attrs.Updated,
	}, nil
}

// List implements UploadStore.
func (u *Uploads) List(ctx context.Context) ([]types.UploadedFile, error) {
	objs, err := u.store.List(ctx, UploadsDir)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	out := make([]types.UploadedFile, 0, len(objs))
	for _, a := range objs {
		if !strings.EqualFold(path.Ext(a.Path), ".csv") {
			continue
		}
		out = append(out, types.UploadedFile{
			Location:   a.Path,
			URL:        a.URL,
			Size:       a.Size,
			UploadedAt: a.Updated,
		})
	}
	return out, nil
}
