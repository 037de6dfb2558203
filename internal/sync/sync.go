// Package sync runs the mail-to-sheet pipeline: list unread messages,
// normalize and filter them, append the accepted rows in one batch,
// mark the consumed messages read, and persist the processed set.
//
// One run is one linear sequence of blocking remote calls. The runner
// is not safe for concurrent use; overlapping runs race on both the
// remote read/unread flags and the local state file, so scheduling
// non-overlapping invocations is the caller's job.
package sync

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avelis/mailsheets/internal/archive"
	"github.com/avelis/mailsheets/internal/filter"
	"github.com/avelis/mailsheets/internal/mailbox"
	"github.com/avelis/mailsheets/internal/normalize"
	"github.com/avelis/mailsheets/internal/retry"
	"github.com/avelis/mailsheets/internal/state"
	"github.com/avelis/mailsheets/internal/tabular"
)

// Recorder archives completed runs. Recording is best effort; a
// recorder failure never changes a run's outcome.
type Recorder interface {
	RecordRun(ctx context.Context, run archive.Run, rows []archive.Row) error
}

// Options carries the per-run configuration the runner needs.
type Options struct {
	// Query and MaxEmails control the unread listing. MaxEmails also
	// caps how many messages one run may accept.
	Query     string
	MaxEmails int

	// SheetName is the tab rows are appended to.
	SheetName string

	// FilterEnabled switches keyword filtering on; Keywords is the
	// match list. With filtering enabled every row carries a fifth
	// cell holding the matched keywords.
	FilterEnabled bool
	Keywords      []string

	// CanMarkRead gates the mark-as-read step on the authenticated
	// scope set.
	CanMarkRead bool

	// DryRun skips the append, the mark-as-read pass, and the state
	// persist, reporting what would have been written.
	DryRun bool
}

// Runner executes one pipeline run against its collaborators.
type Runner struct {
	mail   mailbox.Store
	tab    tabular.Store
	state  *state.Store
	rec    Recorder
	exec   *retry.Executor
	opts   Options
	logger *slog.Logger

	now      func() time.Time
	newRunID func() string
}

// New builds a runner. rec may be nil to disable run archiving.
func New(mail mailbox.Store, tab tabular.Store, st *state.Store, rec Recorder, exec *retry.Executor, opts Options, logger *slog.Logger) *Runner {
	return &Runner{
		mail:     mail,
		tab:      tab,
		state:    st,
		rec:      rec,
		exec:     exec,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

// accepted pairs a record with its projected row for the batch steps.
type accepted struct {
	rec *normalize.Record
	row []string
}

// Run executes one pipeline run and returns its statistics. Success
// is signaled by a positive RowsAdded; every failure mode short of a
// caller bug yields zero rows, never an error, so callers decide exit
// status from the count alone.
func (r *Runner) Run(ctx context.Context) state.RunStats {
	start := r.now().UTC()
	stats := state.RunStats{StartTime: &start}
	defer func() {
		if stats.EndTime == nil {
			end := r.now().UTC()
			stats.EndTime = &end
		}
	}()

	r.state.Load()
	r.logger.Info("run started",
		"processed_ids", r.state.Len(),
		"max_emails", r.opts.MaxEmails,
		"filtering", r.opts.FilterEnabled)

	title, err := retry.DoValue(r.exec, ctx, "probe sheet", func(ctx context.Context) (string, error) {
		return r.tab.Probe(ctx)
	})
	if err != nil {
		r.logger.Error("tabular store unreachable, aborting run", "error", err)
		return stats
	}
	r.logger.Debug("tabular store reachable", "title", title)
	if count, err := r.tab.RowCount(ctx, r.opts.SheetName, "A"); err == nil {
		r.logger.Debug("sheet row count at run start", "rows", count)
	} else {
		r.logger.Debug("sheet row count unavailable", "error", err)
	}

	summaries, err := retry.DoValue(r.exec, ctx, "list unread", func(ctx context.Context) ([]mailbox.Summary, error) {
		return r.mail.ListUnread(ctx, r.opts.Query, int64(r.opts.MaxEmails))
	})
	if err != nil {
		r.logger.Error("listing unread messages failed", "error", err)
		return stats
	}
	if len(summaries) == 0 {
		r.logger.Info("no unread messages")
		return stats
	}
	r.logger.Info("unread messages fetched", "count", len(summaries))

	var batch []accepted
	var pendingMark []string
	for _, sum := range summaries {
		if len(batch) >= r.opts.MaxEmails {
			// Leave the rest unread for the next run.
			break
		}
		if r.state.Contains(sum.ID) {
			r.logger.Debug("skipping already processed message", "id", shortID(sum.ID))
			continue
		}

		msg, err := retry.DoValue(r.exec, ctx, "get message", func(ctx context.Context) (*mailbox.RawMessage, error) {
			return r.mail.GetMessage(ctx, sum.ID)
		})
		if err != nil {
			r.logger.Warn("fetching message failed, skipping", "id", shortID(sum.ID), "error", err)
			continue
		}

		rec, err := normalize.Normalize(msg)
		if err != nil {
			r.logger.Warn("normalizing message failed, skipping", "id", shortID(sum.ID), "error", err)
			continue
		}

		if r.opts.FilterEnabled {
			ok, matched := filter.ShouldProcess(rec, r.opts.Keywords)
			if !ok {
				stats.EmailsFiltered++
				r.logger.Debug("message filtered out",
					"id", shortID(rec.MessageID), "subject", rec.Subject)
				continue
			}
			rec.MatchedKeywords = matched
		}

		row := normalize.ToRow(rec)
		if r.opts.FilterEnabled {
			row = append(row, strings.Join(rec.MatchedKeywords, ", "))
		}

		batch = append(batch, accepted{rec: rec, row: row})
		r.state.Add(rec.MessageID)
		pendingMark = append(pendingMark, rec.MessageID)
		stats.EmailsProcessed++
		r.logger.Info("message accepted",
			"id", shortID(rec.MessageID),
			"sender", rec.Sender,
			"keywords", rec.MatchedKeywords)
	}

	if len(batch) == 0 {
		r.logger.Info("no messages accepted this run", "filtered", stats.EmailsFiltered)
		return stats
	}

	rows := make([][]string, len(batch))
	for i, a := range batch {
		rows[i] = a.row
	}

	if r.opts.DryRun {
		r.logger.Info("dry run: skipping append, mark-as-read, and state persist",
			"would_add", len(rows))
		stats.RowsAdded = len(rows)
		return stats
	}

	added, err := retry.DoValue(r.exec, ctx, "append rows", func(ctx context.Context) (int, error) {
		return r.tab.AppendRows(ctx, r.opts.SheetName, rows)
	})
	if err != nil {
		// Accepted ids are not persisted, so these messages are
		// retried next run.
		r.logger.Error("appending rows failed", "error", err, "rows", len(rows))
		return stats
	}
	stats.RowsAdded = added
	if added < len(rows) {
		// Every accepted id is persisted regardless; rows the store
		// did not acknowledge are not retried.
		r.logger.Warn("store acknowledged fewer rows than requested",
			"requested", len(rows), "acknowledged", added)
	}

	if r.opts.CanMarkRead {
		for _, id := range pendingMark {
			err := r.exec.Do(ctx, "mark read", func(ctx context.Context) error {
				return r.mail.MarkRead(ctx, id)
			})
			if err != nil {
				r.logger.Warn("marking message read failed", "id", shortID(id), "error", err)
				continue
			}
			stats.EmailsMarkedRead++
		}
	} else {
		r.logger.Info("mailbox mutation scope not granted, leaving messages unread")
	}

	end := r.now().UTC()
	stats.EndTime = &end
	if err := r.state.Save(stats); err != nil {
		r.logger.Error("persisting state failed", "error", err)
	}

	r.archiveRun(ctx, stats, start, batch)

	r.logger.Info("run completed",
		"rows_added", stats.RowsAdded,
		"filtered", stats.EmailsFiltered,
		"marked_read", stats.EmailsMarkedRead)
	return stats
}

// archiveRun records the run in the local archive when one is wired.
func (r *Runner) archiveRun(ctx context.Context, stats state.RunStats, start time.Time, batch []accepted) {
	if r.rec == nil {
		return
	}
	run := archive.Run{
		ID:               r.newRunID(),
		StartedAt:        start,
		FinishedAt:       r.now().UTC(),
		EmailsProcessed:  stats.EmailsProcessed,
		EmailsFiltered:   stats.EmailsFiltered,
		RowsAdded:        stats.RowsAdded,
		EmailsMarkedRead: stats.EmailsMarkedRead,
	}
	rows := make([]archive.Row, 0, len(batch))
	for _, a := range batch {
		rows = append(rows, archive.Row{
			RunID:     run.ID,
			MessageID: a.rec.MessageID,
			Sender:    a.rec.Sender,
			Subject:   a.rec.Subject,
			SentAt:    a.rec.Timestamp,
			Keywords:  strings.Join(a.rec.MatchedKeywords, ", "),
		})
	}
	if err := r.rec.RecordRun(ctx, run, rows); err != nil {
		r.logger.Warn("archiving run failed", "error", err)
	}
}

// shortID truncates a message id for log lines.
func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}
