// Package filter decides whether a canonical record should be
// processed based on a configured keyword set. Filtering is opt-in:
// an empty keyword set accepts everything.
package filter

import (
	"strings"

	"github.com/avelis/mailsheets/internal/normalize"
)

// ShouldProcess reports whether the record matches the keyword set
// and returns every matching keyword in configuration order. A
// keyword matches when it appears, case-insensitively, in the subject
// or the body.
func ShouldProcess(rec *normalize.Record, keywords []string) (bool, []string) {
	if len(keywords) == 0 {
		return true, nil
	}

	subject := strings.ToLower(rec.Subject)
	body := strings.ToLower(rec.Body)

	var matched []string
	for _, kw := range keywords {
		needle := strings.ToLower(kw)
		if needle == "" {
			continue
		}
		if strings.Contains(subject, needle) || strings.Contains(body, needle) {
			matched = append(matched, kw)
		}
	}

	return len(matched) > 0, matched
}
