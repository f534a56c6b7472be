// Package repository persists snapshots, the history index, the roster and
// raw uploads as JSON/CSV documents in a blob store.
package repository

import (
	"context"

	"github.com/okian/nudge/internal/domain/model"
	"github.com/okian/nudge/internal/domain/types"
)

// SnapshotStore reads and writes weekly snapshot documents.
type SnapshotStore interface {
	// Save writes s at s.SnapshotID and returns it with SnapshotURL set.
	Save(ctx context.Context, s model.Snapshot) (model.Snapshot, error)
	// Load returns nil when nothing is stored at path.
	Load(ctx context.Context, path string) (*model.Snapshot, error)
	// Previous returns the raw bytes currently stored at path, if any.
	Previous(ctx context.Context, path string) ([]byte, bool, error)
	// Restore writes raw bytes back to path.
	Restore(ctx context.Context, path string, data []byte) error
	// MirrorLatest writes s to the legacy latest path when enabled.
	MirrorLatest(ctx context.Context, s model.Snapshot) error
}

// HistoryStore maintains the index of known weeks.
type HistoryStore interface {
	Upsert(ctx context.Context, entry model.HistoryEntry) (model.HistoryIndex, error)
	List(ctx context.Context) ([]model.HistoryEntry, error)
	Get(ctx context.Context, weekID string) (model.HistoryEntry, bool, error)
	Latest(ctx context.Context) (model.HistoryEntry, bool, error)
}

// RosterStore keeps the master roster.
type RosterStore interface {
	Save(ctx context.Context, names []string) error
	Load(ctx context.Context) ([]string, error)
}

// UploadStore keeps raw uploaded CSV files.
type UploadStore interface {
	Save(ctx context.Context, name string, data []byte) (types.UploadedFile, error)
	List(ctx context.Context) ([]types.UploadedFile, error)
}

var (
	_ SnapshotStore = (*Snapshots)(nil)
	_ HistoryStore  = (*History)(nil)
	_ RosterStore   = (*Roster)(nil)
	_ UploadStore   = (*Uploads)(nil)
)
