package tabular

import (
	"context"
	"testing"
)

func TestColumnLetter(t *testing.T) {
	cases := []struct {
		n    int
		want string
	}{
		{1, "A"},
		{4, "D"},
		{5, "E"},
		{26, "Z"},
		{0, "A"},
		{40, "Z"},
	}
	for _, c := range cases {
		if got := columnLetter(c.n); got != c.want {
			t.Errorf("columnLetter(%d) = %q, want %q", c.n, got, c.want)
		}
	}
}

func TestAppendRowsEmptyBatchIsNoOp(t *testing.T) {
	s := &SheetsStore{}
	added, err := s.AppendRows(context.Background(), "Sheet1", nil)
	if err != nil {
		t.Fatalf("AppendRows() error = %v", err)
	}
	if added != 0 {
		t.Errorf("AppendRows(nil) = %d, want 0", added)
	}
}
