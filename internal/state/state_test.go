package state

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadMissingFileYieldsEmptySet(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "state.json"), testLogger())
	s.Load()
	if s.Len() != 0 {
		t.Fatalf("expected empty set, got %d ids", s.Len())
	}
	if s.Contains("anything") {
		t.Fatalf("empty set should contain nothing")
	}
}

func TestLoadCorruptFileYieldsEmptySet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	s := NewStore(path, testLogger())
	s.Load()
	if s.Len() != 0 {
		t.Fatalf("expected empty set after corrupt load, got %d", s.Len())
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s := NewStore(path, testLogger())
	s.Load()
	s.Add("msg-1")
	s.Add("msg-2")
	s.Add("msg-2") // duplicate add is a no-op

	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Second)
	err := s.Save(RunStats{
		EmailsProcessed:  2,
		RowsAdded:        2,
		EmailsMarkedRead: 1,
		StartTime:        &start,
		EndTime:          &end,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	reopened := NewStore(path, testLogger())
	reopened.Load()
	if reopened.Len() != 2 {
		t.Fatalf("expected 2 ids after reload, got %d", reopened.Len())
	}
	if !reopened.Contains("msg-1") || !reopened.Contains("msg-2") {
		t.Fatalf("expected both ids present after reload")
	}
}

func TestLoadIgnoresUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	payload := `{
		"processed_ids": ["a", "b"],
		"total_processed": 2,
		"last_updated": "2025-06-02T10:00:00Z",
		"schema_hint": "from-a-future-version",
		"extra": {"nested": true}
	}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	s := NewStore(path, testLogger())
	s.Load()
	if s.Len() != 2 {
		t.Fatalf("expected 2 ids, got %d", s.Len())
	}
}

func TestSavedLayoutMatchesContract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewStore(path, testLogger())
	s.Load()
	s.Add("only-id")
	if err := s.Save(RunStats{EmailsProcessed: 1}); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading saved state: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("saved state is not valid JSON: %v", err)
	}
	for _, key := range []string{"processed_ids", "total_processed", "last_updated", "last_run_stats"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("saved state missing %q", key)
		}
	}

	var stats map[string]json.RawMessage
	if err := json.Unmarshal(doc["last_run_stats"], &stats); err != nil {
		t.Fatalf("last_run_stats is not an object: %v", err)
	}
	if string(stats["start_time"]) != "null" {
		t.Fatalf("expected null start_time, got %s", stats["start_time"])
	}
}
