package ingest

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/nudge/pkg/logger"
)

// SetupLogging sends logs to stderr so stdout carries only the summary.
func SetupLogging(format string) error {
	if err := logger.InitWithOptions(os.Stderr, format); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// ShowHelp prints usage information for the ingest tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `Nudge Ingest Tool
=================

Uploads one CSV and processes it, then prints a JSON summary.

Usage:
  go run ./cmd/ingest -file <path> [options]

Options:
  -file string
        Local CSV to upload (required)
  -master
        Treat the file as the roster instead of a weekly training export
  -first string
        First-name column (overrides header detection)
  -last string
        Last-name column (overrides header detection)
  -full string
        Full-name column (roster only)
  -url string
        Send to a running server instead of the configured store
  -timeout duration
        HTTP request timeout in -url mode (default 30s)
  -help
        Show this help message

Storage, timezone and logging come from NUDGE_* variables or the file in
NUDGE_CONFIG, exactly as for the server.

Examples:
  # Weekly export into the configured store
  go run ./cmd/ingest -file week10.csv

  # Roster with split name columns against a running server
  go run ./cmd/ingest -master -first "Given" -last "Surname" -file staff.csv -url http://localhost:9080
`)
}
