// Package tabular defines the spreadsheet append target and its
// Google Sheets implementation.
package tabular

import "context"

// Store is the tabular store collaborator. AppendRows returns the
// count of rows the store acknowledged, which callers must trust over
// the request size.
type Store interface {
	// AppendRows appends the rows to the named sheet in one batch.
	AppendRows(ctx context.Context, sheet string, rows [][]string) (int, error)

	// Probe verifies the store is reachable, returning a human
	// readable identifier for the target.
	Probe(ctx context.Context) (string, error)

	// RowCount returns the number of populated rows in a column.
	RowCount(ctx context.Context, sheet, column string) (int, error)
}
