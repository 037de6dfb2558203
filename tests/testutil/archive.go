package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/avelis/mailsheets/internal/archive"
)

// Logger returns a logger that discards all output, for injecting
// into components under test.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewTestArchive creates an in-memory run archive with all migrations
// applied. It automatically closes the archive when the test completes.
func NewTestArchive(t *testing.T) *archive.Archive {
	t.Helper()

	a, err := archive.Open(":memory:", Logger())
	if err != nil {
		t.Fatalf("creating test archive: %v", err)
	}

	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Errorf("closing test archive: %v", err)
		}
	})

	return a
}
