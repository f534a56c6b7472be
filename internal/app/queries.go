package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/okian/nudge/internal/adapters/repository"
	"github.com/okian/nudge/internal/domain/leaderboard"
	"github.com/okian/nudge/internal/domain/model"
	"github.com/okian/nudge/internal/domain/roster"
	"github.com/okian/nudge/internal/domain/snapshot"
	"github.com/okian/nudge/internal/domain/types"
	"github.com/okian/nudge/pkg/logger"
	"github.com/okian/nudge/pkg/metrics"
)

// FetchSnapshot loads the snapshot stored at snapshotID. The legacy latest
// path resolves through the history index, and any other path must be the
// one indexed for its week. A missing or unindexed snapshot is nil.
func (s *Service) FetchSnapshot(ctx context.Context, snapshotID string) (*model.Snapshot, error) {
	snapshotID = strings.TrimSpace(snapshotID)
	if snapshotID == "" {
		return nil, fmt.Errorf("%w: snapshotId is required", ErrInvalidInput)
	}
	if snapshotID == snapshot.LatestPath {
		return s.FetchLatestSnapshot(ctx)
	}

	ctx, span := s.startSpan(ctx, "fetch_snapshot", attribute.String("snapshot", snapshotID))
	defer span.End()

	// Only snapshots the history index points at are visible.
	week, ok := snapshot.WeekFromPath(snapshotID)
	if !ok {
		return nil, nil
	}
	entry, found, err := s.history.Get(ctx, week)
	if err != nil {
		return nil, fail(span, err)
	}
	if !found || entry.SnapshotPath != snapshotID {
		return nil, nil
	}
	snap, err := s.snapshots.Load(ctx, snapshotID)
	if err != nil {
		return nil, fail(span, err)
	}
	return snap, nil
}

// FetchSnapshotByWeek loads the snapshot registered for weekID, or nil when
// the week is unknown.
func (s *Service) FetchSnapshotByWeek(ctx context.Context, weekID string) (*model.Snapshot, error) {
	ctx, span := s.startSpan(ctx, "fetch_snapshot_by_week", attribute.String("week", weekID))
	defer span.End()

	entry, found, err := s.history.Get(ctx, strings.TrimSpace(weekID))
	if err != nil {
		return nil, fail(span, err)
	}
	if !found {
		return nil, nil
	}
	snap, err := s.snapshots.Load(ctx, entry.SnapshotPath)
	if err != nil {
		return nil, fail(span, err)
	}
	return snap, nil
}

// FetchLatestSnapshot loads the snapshot of the greatest known week, or nil
// when nothing has been processed yet.
func (s *Service) FetchLatestSnapshot(ctx context.Context) (*model.Snapshot, error) {
	ctx, span := s.startSpan(ctx, "fetch_latest_snapshot")
	defer span.End()

	entry, found, err := s.history.Latest(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	if !found {
		return nil, nil
	}
	snap, err := s.snapshots.Load(ctx, entry.SnapshotPath)
	if err != nil {
		return nil, fail(span, err)
	}
	if snap != nil {
		metrics.UpdateLatestOffenders(snap.OffenderCount)
	}
	return snap, nil
}

// ListHistoryEntries returns every known week, most recent upload first.
func (s *Service) ListHistoryEntries(ctx context.Context) ([]model.HistoryEntry, error) {
	ctx, span := s.startSpan(ctx, "list_history_entries")
	defer span.End()

	entries, err := s.history.List(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	return entries, nil
}

// loadAll reads the snapshot of every entry concurrently. Snapshots that
// cannot be read or no longer exist are skipped and reported by week.
// The result keeps the order of entries.
func (s *Service) loadAll(ctx context.Context, entries []model.HistoryEntry) ([]model.Snapshot, []string) {
	results := make([]*model.Snapshot, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	if s.fetchConcurrency > 0 {
		g.SetLimit(s.fetchConcurrency)
	}
	for i, e := range entries {
		g.Go(func() error {
			snap, err := s.snapshots.Load(gctx, e.SnapshotPath)
			if err != nil {
				s.logger.Warn(gctx, "skipping unreadable snapshot",
					logger.String("week", e.WeekID), logger.Error(err))
				return nil
			}
			results[i] = snap
			return nil
		})
	}
	_ = g.Wait()

	loaded := make([]model.Snapshot, 0, len(entries))
	skipped := []string{}
	for i, snap := range results {
		if snap == nil {
			metrics.RecordSnapshotSkipped()
			skipped = append(skipped, entries[i].WeekID)
			continue
		}
		loaded = append(loaded, *snap)
	}
	return loaded, skipped
}

// LeaderboardReport aggregates incomplete rows across every week in the
// history index. Unreadable weeks are skipped, not fatal.
func (s *Service) LeaderboardReport(ctx context.Context) (types.LeaderboardReport, error) {
	ctx, span := s.startSpan(ctx, "build_leaderboard")
	defer span.End()
	start := time.Now()

	entries, err := s.history.List(ctx)
	if err != nil {
		return types.LeaderboardReport{}, fail(span, err)
	}
	snaps, skipped := s.loadAll(ctx, entries)

	weeks := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		weeks = append(weeks, snap.WeekID)
	}
	report := types.LeaderboardReport{
		Entries: leaderboard.Aggregate(snaps),
		Weeks:   weeks,
		Skipped: skipped,
	}
	span.SetAttributes(attribute.Int("weeks", len(weeks)), attribute.Int("skipped", len(skipped)))
	metrics.RecordLeaderboardLatency(float64(time.Since(start).Milliseconds()))
	return report, nil
}

// BuildLeaderboard returns the cumulative leaderboard entries.
func (s *Service) BuildLeaderboard(ctx context.Context) ([]types.LeaderboardEntry, error) {
	report, err := s.LeaderboardReport(ctx)
	if err != nil {
		return nil, err
	}
	return report.Entries, nil
}

// FetchCurrentLists partitions the roster against the latest offenders.
// A missing roster or snapshot yields empty lists.
func (s *Service) FetchCurrentLists(ctx context.Context) (types.CurrentLists, error) {
	ctx, span := s.startSpan(ctx, "fetch_current_lists")
	defer span.End()

	var (
		names  []string
		latest *model.Snapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		names, err = s.roster.Load(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		latest, err = s.FetchLatestSnapshot(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return types.CurrentLists{}, fail(span, err)
	}

	offenders := []string{}
	if latest != nil {
		offenders = latest.OffenderList
	}
	return types.CurrentLists{
		HighRiskUsers: offenders,
		RouletteUsers: roster.Partition(names, offenders),
	}, nil
}

// OffenderProfile summarises one person across every stored week.
func (s *Service) OffenderProfile(ctx context.Context, name string) (types.OffenderProfile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.OffenderProfile{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	ctx, span := s.startSpan(ctx, "offender_profile", attribute.String("name", name))
	defer span.End()

	entries, err := s.history.List(ctx)
	if err != nil {
		return types.OffenderProfile{}, fail(span, err)
	}
	snaps, _ := s.loadAll(ctx, entries)
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].WeekID < snaps[j].WeekID })

	profile, ok := leaderboard.Profile(name, snaps, s.clock())
	if !ok {
		return types.OffenderProfile{}, fail(span, fmt.Errorf("offender %q: %w", name, repository.ErrNotFound))
	}
	return profile, nil
}
