package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/nudge/internal/domain/model"
	"github.com/okian/nudge/internal/domain/snapshot"
)

// SnapshotDependencies reads snapshots and the history index.
type SnapshotDependencies interface {
	FetchSnapshot(ctx context.Context, snapshotID string) (*model.Snapshot, error)
	FetchSnapshotByWeek(ctx context.Context, weekID string) (*model.Snapshot, error)
	FetchLatestSnapshot(ctx context.Context) (*model.Snapshot, error)
	ListHistoryEntries(ctx context.Context) ([]model.HistoryEntry, error)
}

// SnapshotHandler handles snapshot and history reads.
type SnapshotHandler struct {
	deps SnapshotDependencies
}

// NewSnapshotHandler creates a new snapshot handler.
func NewSnapshotHandler(deps SnapshotDependencies) *SnapshotHandler {
	return &SnapshotHandler{deps: deps}
}

// snapshotResponse is a snapshot plus its per-person incomplete counts.
type snapshotResponse struct {
	model.Snapshot
	Heatmap map[string]int `json:"heatmap"`
}

func newSnapshotResponse(s *model.Snapshot) snapshotResponse {
	return snapshotResponse{Snapshot: *s, Heatmap: snapshot.Heatmap(s.ParsedRows)}
}

// HandleSnapshot handles GET /api/snapshot?snapshotId=... or ?weekId=...
func (h *SnapshotHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_snapshot"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("snapshotId"))
	week := strings.TrimSpace(q.Get("weekId"))

	var (
		snap *model.Snapshot
		err  error
	)
	switch {
	case id != "":
		snap, err = h.deps.FetchSnapshot(r.Context(), id)
	case week != "":
		snap, err = h.deps.FetchSnapshotByWeek(r.Context(), week)
	default:
		writeFailure(r.Context(), w, WrapKind(op, ErrBadRequest, fmt.Errorf("snapshotId or weekId is required")))
		return
	}
	if err != nil {
		writeFailure(r.Context(), w, Wrap(op, err))
		return
	}
	if snap == nil {
		writeFailure(r.Context(), w, NewKind(op, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotResponse(snap))
}

// HandleLatest handles GET /api/latest-snapshot.
func (h *SnapshotHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_latest_snapshot"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	snap, err := h.deps.FetchLatestSnapshot(r.Context())
	if err != nil {
		writeFailure(r.Context(), w, Wrap(op, err))
		return
	}
	if snap == nil {
		writeFailure(r.Context(), w, WrapKind(op, ErrNotFound, fmt.Errorf("no snapshot has been processed yet")))
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotResponse(snap))
}

// HandleHistory handles GET /api/history.
func (h *SnapshotHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	entries, err := h.deps.ListHistoryEntries(r.Context())
	if err != nil {
		writeFailure(r.Context(), w, Wrap(op, err))
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, model.HistoryIndex{Weeks: entries})
}
