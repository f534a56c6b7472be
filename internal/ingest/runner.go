package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/okian/nudge/internal/domain/csvparse"
	"github.com/okian/nudge/internal/domain/model"
	"github.com/okian/nudge/internal/domain/roster"
	"github.com/okian/nudge/internal/domain/types"
	"github.com/okian/nudge/pkg/logger"
)

// ErrNoFile is returned when no input file was given.
var ErrNoFile = errors.New("ingest: -file is required")

// Backend uploads and processes files. The service satisfies it for local
// runs and HTTPClient for remote ones.
type Backend interface {
	UploadCSV(ctx context.Context, name string, data []byte) (types.UploadedFile, error)
	ProcessCSVSnapshot(ctx context.Context, location string, mapping csvparse.FieldMapping) (model.Snapshot, error)
	ProcessMasterCSV(ctx context.Context, location string, mapping roster.Mapping) ([]string, error)
}

// Run uploads cfg.File through b and processes it.
func Run(ctx context.Context, cfg *Config, b Backend) (Summary, error) {
	log := logger.Named("ingest")
	if strings.TrimSpace(cfg.File) == "" {
		return Summary{}, ErrNoFile
	}
	data, err := os.ReadFile(cfg.File)
	if err != nil {
		return Summary{}, fmt.Errorf("ingest: read %s: %w", cfg.File, err)
	}

	uploaded, err := b.UploadCSV(ctx, filepath.Base(cfg.File), data)
	if err != nil {
		return Summary{}, fmt.Errorf("ingest: upload: %w", err)
	}
	log.Info(ctx, "file uploaded",
		logger.String("location", uploaded.Location),
		logger.Int64("size", uploaded.Size))

	if cfg.Master {
		names, err := b.ProcessMasterCSV(ctx, uploaded.Location, cfg.RosterMapping())
		if err != nil {
			return Summary{}, fmt.Errorf("ingest: process roster: %w", err)
		}
		log.Info(ctx, "roster replaced", logger.Int("names", len(names)))
		return Summary{Kind: KindMaster, Location: uploaded.Location, RosterSize: len(names)}, nil
	}

	snap, err := b.ProcessCSVSnapshot(ctx, uploaded.Location, cfg.FieldMapping())
	if err != nil {
		return Summary{}, fmt.Errorf("ingest: process snapshot: %w", err)
	}
	log.Info(ctx, "snapshot stored",
		logger.String("weekId", snap.WeekID),
		logger.Int("offenders", snap.OffenderCount))
	return Summary{
		Kind:            KindTraining,
		Location:        uploaded.Location,
		WeekID:          snap.WeekID,
		SnapshotID:      snap.SnapshotID,
		SnapshotURL:     snap.SnapshotURL,
		OffenderCount:   snap.OffenderCount,
		TotalIncomplete: snap.IncompleteSessions.Total,
	}, nil
}
