package filter

import (
	"reflect"
	"testing"

	"github.com/avelis/mailsheets/internal/normalize"
)

func rec(subject, body string) *normalize.Record {
	return &normalize.Record{Subject: subject, Body: body}
}

func TestEmptyKeywordSetAcceptsEverything(t *testing.T) {
	ok, matched := ShouldProcess(rec("anything", "at all"), nil)
	if !ok {
		t.Fatalf("expected acceptance with no keywords")
	}
	if len(matched) != 0 {
		t.Fatalf("expected no matched keywords, got %v", matched)
	}
}

func TestSubjectKeywordMatchIsCaseInsensitive(t *testing.T) {
	ok, matched := ShouldProcess(
		rec("Re: Invoice #123", "see attached"),
		[]string{"invoice"},
	)
	if !ok {
		t.Fatalf("expected a match on the subject")
	}
	if !reflect.DeepEqual(matched, []string{"invoice"}) {
		t.Fatalf("expected matched [invoice], got %v", matched)
	}
}

func TestBodyKeywordCountsAsMatch(t *testing.T) {
	ok, matched := ShouldProcess(
		rec("hello", "your payment is overdue"),
		[]string{"invoice", "payment"},
	)
	if !ok {
		t.Fatalf("expected a match on the body")
	}
	if !reflect.DeepEqual(matched, []string{"payment"}) {
		t.Fatalf("expected matched [payment], got %v", matched)
	}
}

func TestAllMatchingKeywordsReturnedInOrder(t *testing.T) {
	ok, matched := ShouldProcess(
		rec("Invoice for your order", "quote enclosed"),
		[]string{"quote", "invoice", "order", "refund"},
	)
	if !ok {
		t.Fatalf("expected a match")
	}
	if !reflect.DeepEqual(matched, []string{"quote", "invoice", "order"}) {
		t.Fatalf("expected configuration-ordered matches, got %v", matched)
	}
}

func TestNoKeywordMatchRejects(t *testing.T) {
	ok, matched := ShouldProcess(
		rec("weekly newsletter", "nothing relevant"),
		[]string{"invoice"},
	)
	if ok {
		t.Fatalf("expected rejection")
	}
	if matched != nil {
		t.Fatalf("expected nil matches, got %v", matched)
	}
}
