// Package snapshot builds weekly snapshots from incomplete training rows
// and owns the week-keyed storage paths.
package snapshot

import (
	"fmt"
	"regexp"
	"time"

	"github.com/okian/nudge/internal/domain/model"
)

// Storage layout.
const (
	Dir        = "snapshots/"
	LatestPath = Dir + "latest.json"
)

var pathPattern = regexp.MustCompile(`(?i)snapshots/([^/]+)\.json$`) //nolint:gochecknoglobals // compiled once

// WeekID returns the ISO-8601 week of t's calendar date in t's location,
// formatted "<isoYear>-Week-<ww>".
func WeekID(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-Week-%02d", year, week)
}

// Path returns the storage path of a week's snapshot.
func Path(weekID string) string {
	return Dir + weekID + ".json"
}

// WeekFromPath is the inverse of Path. The legacy latest mirror has no week.
func WeekFromPath(path string) (string, bool) {
	m := pathPattern.FindStringSubmatch(path)
	if m == nil || path == LatestPath {
		return "", false
	}
	return m[1], true
}

// Build aggregates incomplete rows into a snapshot stamped at now.
// Rows that are not incomplete are ignored.
func Build(rows []model.ParsedRow, now time.Time) model.Snapshot {
	week := WeekID(now)
	s := model.Snapshot{
		WeekID:       week,
		SnapshotID:   Path(week),
		UploadedAt:   now,
		OffenderList: []string{},
		ParsedRows:   make([]model.ParsedRow, 0, len(rows)),
	}

	seen := make(map[string]struct{})
	for _, r := range rows {
		if !r.IsIncomplete() {
			continue
		}
		s.ParsedRows = append(s.ParsedRows, r)
		switch model.NormalizeStatus(r.Status) {
		case model.StatusNotStarted:
			s.IncompleteSessions.NotStarted++
		case model.StatusInProgress:
			s.IncompleteSessions.InProgress++
		}
		if _, ok := seen[r.FullName]; !ok {
			seen[r.FullName] = struct{}{}
			s.OffenderList = append(s.OffenderList, r.FullName)
		}
	}
	s.IncompleteSessions.Total = s.IncompleteSessions.NotStarted + s.IncompleteSessions.InProgress
	s.OffenderCount = len(s.OffenderList)
	return s
}

// Heatmap counts incomplete rows per person.
func Heatmap(rows []model.ParsedRow) map[string]int {
	counts := make(map[string]int)
	for _, r := range rows {
		if r.IsIncomplete() {
			counts[r.FullName]++
		}
	}
	return counts
}
