// Package leaderboard aggregates incomplete training rows across snapshots.
package leaderboard

import (
	"sort"
	"strings"
	"time"

	"github.com/okian/nudge/internal/domain/model"
	"github.com/okian/nudge/internal/domain/types"
)

// Aggregate sums incomplete rows per person across snapshots and orders the
// result by count descending, then name ascending.
func Aggregate(snapshots []model.Snapshot) []types.LeaderboardEntry {
	counts := make(map[string]int)
	for _, s := range snapshots {
		for _, r := range s.ParsedRows {
			if r.IsIncomplete() {
				counts[r.FullName]++
			}
		}
	}

	entries := make([]types.LeaderboardEntry, 0, len(counts))
	for name, n := range counts {
		entries = append(entries, types.LeaderboardEntry{Name: name, Count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Top returns at most limit entries. A limit <= 0 returns all of them.
func Top(entries []types.LeaderboardEntry, limit int) []types.LeaderboardEntry {
	if limit <= 0 || limit >= len(entries) {
		return entries
	}
	return entries[:limit]
}

// sentDateLayouts are tried in order when computing pending days.
var sentDateLayouts = []string{ //nolint:gochecknoglobals // fixed table
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"01/02/2006",
	"1/2/2006",
	"02 Jan 2006",
	"Jan 2, 2006",
}

// PendingDays returns whole days between sentDate and now, or -1 when
// sentDate is not a recognised date. Dates in the future count as zero.
func PendingDays(sentDate string, now time.Time) int {
	sentDate = strings.TrimSpace(sentDate)
	if sentDate == "" {
		return -1
	}
	for _, layout := range sentDateLayouts {
		t, err := time.ParseInLocation(layout, sentDate, now.Location())
		if err != nil {
			continue
		}
		d := int(now.Sub(t).Hours() / 24)
		if d < 0 {
			return 0
		}
		return d
	}
	return -1
}

// Profile summarises name across snapshots ordered oldest to newest.
// Sessions come from the newest snapshot only. The boolean is false when
// the person has no incomplete row anywhere.
func Profile(name string, snapshots []model.Snapshot, now time.Time) (types.OffenderProfile, bool) {
	p := types.OffenderProfile{Name: name, Weeks: []string{}, Sessions: []types.Session{}}
	for _, s := range snapshots {
		present := false
		for _, r := range s.ParsedRows {
			if r.FullName != name || !r.IsIncomplete() {
				continue
			}
			seen := r.SentDate
			if seen == "" {
				seen = s.UploadedAt.UTC().Format(time.RFC3339)
			}
			if p.Count == 0 {
				p.FirstSeen = seen
			}
			p.LastSeen = seen
			if r.Title != "" {
				p.LastTitle = r.Title
			}
			p.Count++
			present = true
		}
		if present {
			p.Weeks = append(p.Weeks, s.WeekID)
		}
	}
	if p.Count == 0 {
		return types.OffenderProfile{}, false
	}

	if n := len(snapshots); n > 0 {
		for _, r := range snapshots[n-1].ParsedRows {
			if r.FullName == name && r.IsIncomplete() {
				p.Sessions = append(p.Sessions, types.Session{
					Title:       r.Title,
					SentDate:    r.SentDate,
					Status:      r.Status,
					PendingDays: PendingDays(r.SentDate, now),
				})
			}
		}
	}
	return p, true
}
