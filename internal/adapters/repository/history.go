package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/okian/nudge/internal/adapters/blobstore"
	"github.com/okian/nudge/internal/domain/model"
	"github.com/okian/nudge/pkg/logger"
	"github.com/okian/nudge/pkg/metrics"
)

// IndexPath is where the history index lives.
const IndexPath = "history/index.json"

// History keeps the week index as a single document. Writes are
// read-modify-write cycles guarded by the object generation.
type History struct {
	store       blobstore.Store
	maxAttempts int
	log         logger.Logger
}

// NewHistory creates a history repository over store.
func NewHistory(store blobstore.Store, opts ...HistoryOption) *History {
	h := &History{store: store, maxAttempts: defaultHistoryAttempts}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.Named("history")
	}
	return h
}

// read returns the index and the generation it was read at. A missing
// index is empty at generation 0.
func (h *History) read(ctx context.Context) (model.HistoryIndex, int64, error) {
	data, attrs, err := h.store.Read(ctx, IndexPath)
	if errors.Is(err, blobstore.ErrNotFound) {
		return model.HistoryIndex{Weeks: []model.HistoryEntry{}}, 0, nil
	}
	if err != nil {
		return model.HistoryIndex{}, 0, fmt.Errorf("read history index: %w", err)
	}
	var idx model.HistoryIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return model.HistoryIndex{}, 0, fmt.Errorf("decode history index: %w: %w", ErrCorrupted, err)
	}
	if idx.Weeks == nil {
		idx.Weeks = []model.HistoryEntry{}
	}
	return idx, attrs.Generation, nil
}

// apply replaces the entry for the same week in place or appends it, then
// orders the index most recent upload first.
func apply(idx model.HistoryIndex, entry model.HistoryEntry) model.HistoryIndex {
	weeks := make([]model.HistoryEntry, 0, len(idx.Weeks)+1)
	replaced := false
	for _, e := range idx.Weeks {
		if e.WeekID == entry.WeekID {
			if !replaced {
				weeks = append(weeks, entry)
				replaced = true
			}
			continue
		}
		weeks = append(weeks, e)
	}
	if !replaced {
		weeks = append(weeks, entry)
	}
	sort.SliceStable(weeks, func(i, j int) bool {
		return weeks[i].UploadedAt.After(weeks[j].UploadedAt)
	})
	return model.HistoryIndex{Weeks: weeks}
}

// Upsert implements HistoryStore.
func (h *History) Upsert(ctx context.Context, entry model.HistoryEntry) (model.HistoryIndex, error) {
	for attempt := 1; attempt <= h.maxAttempts; attempt++ {
		idx, gen, err := h.read(ctx)
		if err != nil {
			return model.HistoryIndex{}, err
		}
		next := apply(idx, entry)
		body, err := json.Marshal(next)
		if err != nil {
			return model.HistoryIndex{}, fmt.Errorf("encode history index: %w", err)
		}

		_, err = h.store.Put(ctx, IndexPath, body, blobstore.IfGenerationMatch(gen))
		if err == nil {
			metrics.UpdateHistoryWeeks(len(next.Weeks))
			return next, nil
		}
		if !errors.Is(err, blobstore.ErrPreconditionFailed) {
			return model.HistoryIndex{}, fmt.Errorf("write history index: %w", err)
		}
		metrics.RecordHistoryConflict()
		h.log.Warn(ctx, "history index changed concurrently, retrying",
			logger.String("week", entry.WeekID), logger.Int("attempt", attempt))
	}
	return model.HistoryIndex{}, fmt.Errorf("upsert %s after %d attempts: %w", entry.WeekID, h.maxAttempts, ErrConflict)
}

// List implements HistoryStore. Entries are most recent first.
func (h *History) List(ctx context.Context) ([]model.HistoryEntry, error) {
	idx, _, err := h.read(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Weeks, nil
}

// Get implements HistoryStore.
func (h *History) Get(ctx context.Context, weekID string) (model.HistoryEntry, bool, error) {
	idx, _, err := h.read(ctx)
	if err != nil {
		return model.HistoryEntry{}, false, err
	}
	for _, e := range idx.Weeks {
		if e.WeekID == weekID {
			return e, true, nil
		}
	}
	return model.HistoryEntry{}, false, nil
}

// Latest implements HistoryStore. The latest week is the greatest week id,
// not the most recent upload, so re-processing an old week does not move it.
func (h *History) Latest(ctx context.Context) (model.HistoryEntry, bool, error) {
	idx, _, err := h.read(ctx)
	if err != nil {
		return model.HistoryEntry{}, false, err
	}
	var (
		latest model.HistoryEntry
		found  bool
	)
	for _, e := range idx.Weeks {
		if !found || e.WeekID > latest.WeekID {
			latest = e
			found = true
		}
	}
	return latest, found, nil
}
