// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// Incomplete statuses, compared after lowercasing and trimming.
const (
	StatusNotStarted = "not started"
	StatusInProgress = "in progress"
)

// ParsedRow is one training assignment after column resolution.
// Stage-one rows carry every data row of the CSV; snapshots persist only
// rows for which IsIncomplete holds.
type ParsedRow struct {
	FullName  string `json:"fullName"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Title     string `json:"title"`
	SentDate  string `json:"sentDate"` // raw, not validated
	Status    string `json:"status"`
}

// NormalizeStatus lowercases and trims a raw status label.
func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// IsIncomplete reports whether the row names a person whose assignment is
// not started or in progress.
func (r ParsedRow) IsIncomplete() bool {
	if r.FullName == "" {
		return false
	}
	switch NormalizeStatus(r.Status) {
	case StatusNotStarted, StatusInProgress:
		return true
	default:
		return false
	}
}

// IncompleteSessions counts incomplete rows by status.
type IncompleteSessions struct {
	NotStarted int `json:"notStarted"`
	InProgress int `json:"inProgress"`
	Total      int `json:"total"`
}

// Snapshot is the persisted result of processing one weekly CSV.
// OffenderCount == len(OffenderList) and IncompleteSessions.Total ==
// len(ParsedRows).
type Snapshot struct {
	WeekID             string             `json:"weekId"`
	SnapshotID         string             `json:"snapshotId"`
	SnapshotURL        string             `json:"snapshotUrl,omitempty"`
	SourceLocation     string             `json:"sourceFileLocation,omitempty"`
	UploadedAt         time.Time          `json:"uploadedAt"`
	OffenderList       []string           `json:"offenderList"`
	OffenderCount      int                `json:"offenderCount"`
	IncompleteSessions IncompleteSessions `json:"incompleteSessions"`
	ParsedRows         []ParsedRow        `json:"parsedRows"`
}

// HistoryEntry references one weekly snapshot with cached summary fields.
type HistoryEntry struct {
	WeekID          string    `json:"weekId"`
	SnapshotPath    string    `json:"snapshotPath"`
	SnapshotURL     string    `json:"snapshotUrl,omitempty"`
	UploadedAt      time.Time `json:"uploadedAt"`
	OffenderCount   int       `json:"offenderCount"`
	TotalIncomplete int       `json:"totalIncomplete"`
}

// HistoryIndex is the persisted registry of known weeks, most recent first.
type HistoryIndex struct {
	Weeks []HistoryEntry `json:"weeks"`
}

// EntryFor derives the history entry that references s.
func EntryFor(s Snapshot) HistoryEntry {
	return HistoryEntry{
		WeekID:          s.WeekID,
		SnapshotPath:    s.SnapshotID,
		SnapshotURL:     s.SnapshotURL,
		UploadedAt:      s.UploadedAt,
		OffenderCount:   s.OffenderCount,
		TotalIncomplete: s.IncompleteSessions.Total,
	}
}
