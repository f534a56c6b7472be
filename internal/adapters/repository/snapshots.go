package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okian/nudge/internal/adapters/blobstore"
	"github.com/okian/nudge/internal/domain/model"
	"github.com/okian/nudge/internal/domain/snapshot"
	"github.com/okian/nudge/pkg/logger"
)

// Snapshots stores one JSON document per week under snapshots/.
type Snapshots struct {
	store  blobstore.Store
	mirror bool
	log    logger.Logger
}

// NewSnapshots creates a snapshot repository over store.
func NewSnapshots(store blobstore.Store, opts ...SnapshotOption) *Snapshots {
	s := &Snapshots{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Named("snapshots")
	}
	return s
}

// Save implements SnapshotStore.
func (r *Snapshots) Save(ctx context.Context, s model.Snapshot) (model.Snapshot, error) {
	if s.SnapshotID == "" {
		s.SnapshotID = snapshot.Path(s.WeekID)
	}
	s.SnapshotURL = ""
	body, err := json.Marshal(s)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("encode snapshot %s: %w", s.WeekID, err)
	}
	attrs, err := r.store.Put(ctx, s.SnapshotID, body)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("write snapshot %s: %w", s.SnapshotID, err)
	}
	s.SnapshotURL = attrs.URL
	return s, nil
}

// Load implements SnapshotStore.
func (r *Snapshots) Load(ctx context.Context, path string) (*model.Snapshot, error) {
	data, attrs, err := r.store.Read(ctx, path)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	var s model.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w: %w", path, ErrCorrupted, err)
	}
	if s.SnapshotID == "" {
		s.SnapshotID = path
	}
	if s.OffenderList == nil {
		s.OffenderList = []string{}
	}
	if s.ParsedRows == nil {
		s.ParsedRows = []model.ParsedRow{}
	}
	s.SnapshotURL = attrs.URL
	return &s, nil
}

// Previous implements SnapshotStore.
func (r *Snapshots) Previous(ctx context.Context, path string) ([]byte, bool, error) {
	data, _, err := r.store.Read(ctx, path)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read previous snapshot %s: %w", path, err)
	}
	return data, true, nil
}

// Restore implements SnapshotStore.
func (r *Snapshots) Restore(ctx context.Context, path string, data []byte) error {
	if _, err := r.store.Put(ctx, path, data); err != nil {
		return fmt.Errorf("restore snapshot %s: %w", path, err)
	}
	r.log.Info(ctx, "restored previous snapshot", logger.String("path", path))
	return nil
}

// MirrorLatest implements SnapshotStore. It is a no-op unless the mirror
// is enabled.
func (r *Snapshots) MirrorLatest(ctx context.Context, s model.Snapshot) error {
	if !r.mirror {
		return nil
	}
	s.SnapshotURL = ""
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode latest mirror: %w", err)
	}
	if _, err := r.store.Put(ctx, snapshot.LatestPath, body); err != nil {
		return fmt.Errorf("write latest mirror: %w", err)
	}
	return nil
}
