package ingest

import (
	"time"

	"github.com/okian/nudge/internal/domain/csvparse"
	"github.com/okian/nudge/internal/domain/roster"
)

// Config holds one ingest run.
type Config struct {
	File    string        // Local CSV to upload
	Master  bool          // Treat File as the roster instead of a weekly export
	First   string        // First-name column override
	Last    string        // Last-name column override
	Full    string        // Full-name column (roster only)
	BaseURL string        // Remote server; empty means the configured store
	Timeout time.Duration // HTTP request timeout in remote mode
}

// FieldMapping returns the header overrides for a weekly export.
func (c *Config) FieldMapping() csvparse.FieldMapping {
	m := csvparse.FieldMapping{}
	if c.First != "" {
		m[csvparse.FirstName] = c.First
	}
	if c.Last != "" {
		m[csvparse.LastName] = c.Last
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// RosterMapping returns the name columns for a roster file.
func (c *Config) RosterMapping() roster.Mapping {
	return roster.Mapping{FullName: c.Full, FirstName: c.First, LastName: c.Last}
}

// Summary is printed as JSON when a run finishes.
type Summary struct {
	Kind            string `json:"kind"`
	Location        string `json:"location"`
	WeekID          string `json:"weekId,omitempty"`
	SnapshotID      string `json:"snapshotId,omitempty"`
	SnapshotURL     string `json:"snapshotUrl,omitempty"`
	OffenderCount   int    `json:"offenderCount"`
	TotalIncomplete int    `json:"totalIncomplete"`
	RosterSize      int    `json:"rosterSize"`
}

// Summary kinds.
const (
	KindTraining = "training"
	KindMaster   = "master"
)
