package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerUnknownFormat(t *testing.T) {
	if err := InitWithOptions(&bytes.Buffer{}, "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithOptions(&buf, FormatJSON); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = Init() }()

	Named("history").Warn(context.Background(), "upsert conflict",
		String("week", "2024-Week-05"),
		Int("attempt", 2),
		Duration("elapsed", 1500*time.Millisecond),
		Error(errors.New("precondition failed")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "upsert conflict" {
		t.Errorf("unexpected msg: %v", rec["msg"])
	}
	if rec["logger"] != "history" {
		t.Errorf("unexpected logger name: %v", rec["logger"])
	}
	if rec["error"] != "precondition failed" {
		t.Errorf("unexpected error field: %v", rec["error"])
	}
	if rec["elapsed"] != "1.5s" {
		t.Errorf("unexpected elapsed field: %v", rec["elapsed"])
	}
	if src, _ := rec["source"].(string); !strings.Contains(src, "logger_test.go") {
		t.Errorf("source should point at the caller, got %q", src)
	}
}

func TestLoggerNamedChain(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithOptions(&buf, FormatText); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = Init() }()

	Named("app").Named("leaderboard").Info(context.Background(), "built")
	if !strings.Contains(buf.String(), "logger=app.leaderboard") {
		t.Errorf("expected chained name in output, got %q", buf.String())
	}
}

func TestSetLevelString(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithOptions(&buf, FormatText); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = Init() }()

	ctx := context.Background()
	Get().Debug(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level, got %q", buf.String())
	}

	if err := SetLevelString("DEBUG"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Get().Debug(ctx, "visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("debug should be emitted after SetLevelString(debug)")
	}

	if err := SetLevelString("loud"); err == nil {
		t.Errorf("expected error for unknown level")
	}
}
