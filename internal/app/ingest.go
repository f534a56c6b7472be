package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/nudge/internal/adapters/blobstore"
	"github.com/okian/nudge/internal/domain/csvparse"
	"github.com/okian/nudge/internal/domain/model"
	"github.com/okian/nudge/internal/domain/roster"
	"github.com/okian/nudge/internal/domain/snapshot"
	"github.com/okian/nudge/internal/domain/training"
	"github.com/okian/nudge/internal/domain/types"
	"github.com/okian/nudge/pkg/logger"
	"github.com/okian/nudge/pkg/metrics"
)

// download reads a source file from the store. A missing object is a
// caller error.
func (s *Service) download(ctx context.Context, location string) ([]byte, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("%w: file location is required", ErrInvalidInput)
	}
	data, _, err := s.store.Read(ctx, location)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: file %s does not exist", ErrInvalidInput, location)
	}
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", location, err)
	}
	return data, nil
}

// ProcessCSVSnapshot turns the weekly CSV stored at location into the
// snapshot for the current ISO week and registers it in the history index.
// Nothing is written unless every column resolves. When the index update
// fails after the snapshot was written, the previous snapshot of that week
// is put back.
func (s *Service) ProcessCSVSnapshot(ctx context.Context, location string, mapping csvparse.FieldMapping) (model.Snapshot, error) {
	ctx, span := s.startSpan(ctx, "process_csv_snapshot", attribute.String("location", location))
	defer span.End()
	start := time.Now()

	data, err := s.download(ctx, location)
	if err != nil {
		metrics.RecordSnapshotFailed("download")
		return model.Snapshot{}, fail(span, err)
	}

	rows, err := training.Parse(data, mapping)
	if err != nil {
		metrics.RecordSnapshotFailed("parse")
		return model.Snapshot{}, fail(span, invalidInput(err))
	}
	kept := training.Incomplete(rows)
	metrics.RecordRows(len(rows), len(kept))

	snap := snapshot.Build(kept, s.clock().In(s.location))
	snap.SourceLocation = strings.TrimSpace(location)
	span.SetAttributes(attribute.String("week", snap.WeekID), attribute.Int("offenders", snap.OffenderCount))

	previous, hadPrevious, err := s.snapshots.Previous(ctx, snap.SnapshotID)
	if err != nil {
		metrics.RecordSnapshotFailed("store")
		return model.Snapshot{}, fail(span, err)
	}
	saved, err := s.snapshots.Save(ctx, snap)
	if err != nil {
		metrics.RecordSnapshotFailed("store")
		return model.Snapshot{}, fail(span, err)
	}

	if _, err := s.history.Upsert(ctx, model.EntryFor(saved)); err != nil {
		metrics.RecordSnapshotFailed("history")
		s.logger.Error(ctx, "history index update failed, snapshot not registered",
			logger.String("week", saved.WeekID), logger.Error(err))
		if hadPrevious {
			if rerr := s.snapshots.Restore(ctx, saved.SnapshotID, previous); rerr != nil {
				s.logger.Warn(ctx, "could not restore previous snapshot",
					logger.String("path", saved.SnapshotID), logger.Error(rerr))
			}
		}
		return model.Snapshot{}, fail(span, err)
	}

	if err := s.snapshots.MirrorLatest(ctx, saved); err != nil {
		s.logger.Warn(ctx, "legacy latest mirror failed", logger.Error(err))
	}

	metrics.RecordSnapshotProcessed()
	metrics.RecordProcessingLatency(float64(time.Since(start).Milliseconds()))
	s.logger.Info(ctx, "snapshot processed",
		logger.String("week", saved.WeekID),
		logger.String("source", saved.SourceLocation),
		logger.Int("rows", len(rows)),
		logger.Int("incomplete", saved.IncompleteSessions.Total),
		logger.Int("offenders", saved.OffenderCount),
	)
	return saved, nil
}

// ProcessMasterCSV replaces the roster with the names found in the CSV at
// location.
func (s *Service) ProcessMasterCSV(ctx context.Context, location string, mapping roster.Mapping) ([]string, error) {
	ctx, span := s.startSpan(ctx, "process_master_csv", attribute.String("location", location))
	defer span.End()

	if err := mapping.Validate(); err != nil {
		return nil, fail(span, invalidInput(err))
	}
	data, err := s.download(ctx, location)
	if err != nil {
		return nil, fail(span, err)
	}
	table, err := csvparse.Parse(data)
	if err != nil {
		return nil, fail(span, invalidInput(err))
	}
	names, err := roster.Names(table, mapping)
	if err != nil {
		return nil, fail(span, invalidInput(err))
	}
	if err := s.roster.Save(ctx, names); err != nil {
		return nil, fail(span, err)
	}

	metrics.RecordRosterProcessed()
	metrics.UpdateRosterSize(len(names))
	s.logger.Info(ctx, "roster replaced", logger.Int("names", len(names)))
	return names, nil
}

// UploadCSV stores a raw CSV under uploads/ and returns where it landed.
func (s *Service) UploadCSV(ctx context.Context, name string, data []byte) (types.UploadedFile, error) {
	ctx, span := s.startSpan(ctx, "upload_csv", attribute.String("name", name))
	defer span.End()

	if len(data) == 0 {
		return types.UploadedFile{}, fail(span, fmt.Errorf("%w: uploaded file is empty", ErrInvalidInput))
	}
	f, err := s.uploads.Save(ctx, name, data)
	if err != nil {
		return types.UploadedFile{}, fail(span, err)
	}
	metrics.RecordUploadStored()
	s.logger.Info(ctx, "csv uploaded", logger.String("location", f.Location), logger.Int64("size", f.Size))
	return f, nil
}

// ListUploads returns the raw CSV files kept under uploads/.
func (s *Service) ListUploads(ctx context.Context) ([]types.UploadedFile, error) {
	ctx, span := s.startSpan(ctx, "list_uploads")
	defer span.End()

	files, err := s.uploads.List(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	return files, nil
}
