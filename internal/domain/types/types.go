// Package types contains read-side shapes shared by the service and the API.
package types

import "time"

// LeaderboardEntry is one person's cumulative incomplete count.
type LeaderboardEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// LeaderboardReport is a leaderboard plus the weeks it was built from.
type LeaderboardReport struct {
	Entries []LeaderboardEntry `json:"entries"`
	Weeks   []string           `json:"weeks"`
	Skipped []string           `json:"skipped"`
}

// CurrentLists partitions the roster against the latest offenders.
type CurrentLists struct {
	HighRiskUsers []string `json:"highRiskUsers"`
	RouletteUsers []string `json:"rouletteUsers"`
}

// Session is one pending assignment of an offender.
type Session struct {
	Title    string `json:"title"`
	SentDate string `json:"sentDate"`
	Status   string `json:"status"`
	// PendingDays is whole days since SentDate, -1 when it cannot be parsed.
	PendingDays int `json:"pendingDays"`
}

// OffenderProfile summarises one person across all snapshots.
type OffenderProfile struct {
	Name      string    `json:"name"`
	Count     int       `json:"count"`
	FirstSeen string    `json:"firstSeen"`
	LastSeen  string    `json:"lastSeen"`
	LastTitle string    `json:"lastTitle"`
	Weeks     []string  `json:"weeks"`
	Sessions  []Session `json:"sessions"`
}

// UploadedFile describes a raw CSV kept in the blob store.
type UploadedFile struct {
	Location   string    `json:"location"`
	URL        string    `json:"url,omitempty"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}
