package tabular

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsStore implements Store on the Google Sheets API.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
	logger        *slog.Logger
}

// NewSheetsStore builds a Sheets-backed store from an authenticated
// HTTP client and a spreadsheet id.
func NewSheetsStore(ctx context.Context, client *http.Client, spreadsheetID string, logger *slog.Logger) (*SheetsStore, error) {
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}
	return &SheetsStore{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		logger:        logger,
	}, nil
}

// AppendRows appends the batch below the existing data, letting the
// store interpret values as a user would have typed them. The
// returned count is the store's acknowledgment, not the request size.
func (s *SheetsStore) AppendRows(ctx context.Context, sheet string, rows [][]string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	values := make([][]interface{}, 0, len(rows))
	width := 0
	for _, row := range rows {
		cells := make([]interface{}, len(row))
		for i, c := range row {
			cells[i] = c
		}
		values = append(values, cells)
		if len(row) > width {
			width = len(row)
		}
	}

	rangeRef := fmt.Sprintf("%s!A:%s", sheet, columnLetter(width))
	resp, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, rangeRef, &sheets.ValueRange{
		Values: values,
	}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("appending %d rows to %s: %w", len(rows), rangeRef, err)
	}

	added := len(rows)
	if resp.Updates != nil {
		added = int(resp.Updates.UpdatedRows)
	}
	s.logger.Info("appended rows to sheet", "requested", len(rows), "acknowledged", added, "range", rangeRef)
	return added, nil
}

// Probe fetches the spreadsheet metadata as a connectivity check and
// returns its title.
func (s *SheetsStore) Probe(ctx context.Context) (string, error) {
	resp, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("probing spreadsheet %s: %w", shortSpreadsheetID(s.spreadsheetID), err)
	}
	title := "Unknown"
	if resp.Properties != nil {
		title = resp.Properties.Title
	}
	return title, nil
}

// RowCount returns how many rows in the given column hold values.
func (s *SheetsStore) RowCount(ctx context.Context, sheet, column string) (int, error) {
	rangeRef := fmt.Sprintf("%s!%s:%s", sheet, column, column)
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rangeRef).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("reading range %s: %w", rangeRef, err)
	}
	return len(resp.Values), nil
}

// columnLetter maps a 1-based column count to its A1-notation letter,
// capped at Z; row shapes here are 4 or 5 cells wide.
func columnLetter(n int) string {
	if n < 1 {
		n = 1
	}
	if n > 26 {
		n = 26
	}
	return string(rune('A' + n - 1))
}

func shortSpreadsheetID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
