package repository

import "github.com/okian/nudge/pkg/logger"

const defaultHistoryAttempts = 3

// HistoryOption configures a History repository.
type HistoryOption func(*History)

// WithMaxAttempts bounds the compare-and-swap attempts of Upsert.
func WithMaxAttempts(n int) HistoryOption {
	return func(h *History) {
		if n > 0 {
			h.maxAttempts = n
		}
	}
}

// WithHistoryLogger sets the logger used by the history repository.
func WithHistoryLogger(l logger.Logger) HistoryOption {
	return func(h *History) {
		if l != nil {
			h.log = l
		}
	}
}

// SnapshotOption configures a Snapshots repository.
type SnapshotOption func(*Snapshots)

// WithLatestMirror also writes every saved snapshot to snapshots/latest.json
// for readers that still expect the physical pointer.
func WithLatestMirror(enabled bool) SnapshotOption {
	return func(s *Snapshots) {
		s.mirror = enabled
	}
}

// WithSnapshotLogger sets the logger used by the snapshot repository.
func WithSnapshotLogger(l logger.Logger) SnapshotOption {
	return func(s *Snapshots) {
		if l != nil {
			s.log = l
		}
	}
}
