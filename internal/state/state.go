// Package state persists the processed-set: the durable idempotency
// ledger of message ids already handled. Ids are added when a message
// is accepted into the pending append batch, before the remote append
// is acknowledged, and the whole set is persisted exactly once at the
// end of a successful run. A failed save is logged and tolerated; the
// cost is possible reprocessing on the next run, never a lost run.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// RunStats is the per-run counter snapshot embedded in the persisted
// state record. Timestamps are RFC 3339 or null.
type RunStats struct {
	EmailsProcessed  int        `json:"emails_processed"`
	EmailsFiltered   int        `json:"emails_filtered"`
	RowsAdded        int        `json:"rows_added"`
	EmailsMarkedRead int        `json:"emails_marked_read"`
	StartTime        *time.Time `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
}

// fileState is the on-disk layout. Unknown extra fields are ignored
// on load; missing fields default to empty.
type fileState struct {
	ProcessedIDs   []string `json:"processed_ids"`
	TotalProcessed int      `json:"total_processed"`
	LastUpdated    string   `json:"last_updated"`
	LastRunStats   RunStats `json:"last_run_stats"`
}

// Store is the processed-set with its load/save lifecycle. It is not
// safe for concurrent use; one run owns it end to end.
type Store struct {
	path   string
	logger *slog.Logger

	ids   map[string]struct{}
	order []string
}

// NewStore creates a store backed by the given file path. Call Load
// before first use.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger,
		ids:    make(map[string]struct{}),
	}
}

// Load reads the state file. It never fails: a missing, unreadable,
// or corrupt file is logged and yields an empty set, accepting the
// risk of reprocessing over failing the run.
func (s *Store) Load() {
	s.ids = make(map[string]struct{})
	s.order = nil

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("no state file found, starting fresh", "path", s.path)
		} else {
			s.logger.Error("error reading state file, starting fresh", "path", s.path, "error", err)
		}
		return
	}

	var fs fileState
	if err := json.Unmarshal(data, &fs); err != nil {
		s.logger.Error("state file is corrupt, starting fresh", "path", s.path, "error", err)
		return
	}

	for _, id := range fs.ProcessedIDs {
		if _, dup := s.ids[id]; dup {
			continue
		}
		s.ids[id] = struct{}{}
		s.order = append(s.order, id)
	}

	lastUpdated := fs.LastUpdated
	if lastUpdated == "" {
		lastUpdated = "never"
	}
	s.logger.Info("loaded state file",
		"processed", len(s.order),
		"last_updated", lastUpdated)
}

// Contains reports whether the id has already been processed.
func (s *Store) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Add records the id as processed. The set only grows.
func (s *Store) Add(id string) {
	if _, ok := s.ids[id]; ok {
		return
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
}

// Len returns the all-time processed count.
func (s *Store) Len() int {
	return len(s.order)
}

// Save writes the set and the run statistics snapshot. Failures are
// returned for the caller to log; they are never fatal to a run.
func (s *Store) Save(stats RunStats) error {
	fs := fileState{
		ProcessedIDs:   s.order,
		TotalProcessed: len(s.order),
		LastUpdated:    time.Now().Format(time.RFC3339),
		LastRunStats:   stats,
	}
	if fs.ProcessedIDs == nil {
		fs.ProcessedIDs = []string{}
	}

	data, err := json.MarshalIndent(fs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}

	s.logger.Info("state saved", "processed", len(s.order), "path", s.path)
	return nil
}
