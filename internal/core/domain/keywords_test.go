package domain

import (
	"strings"
	"testing"
	"time"
)

func TestParseKeywordQueryNormalizes(t *testing.T) {
	terms, err := ParseKeywordQuery(" Python, AWS ,,python, react ")
	if err != nil {
		t.Fatalf("ParseKeywordQuery() error = %v", err)
	}
	want := []string{"python", "aws", "react"}
	if strings.Join(terms, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, terms)
	}
}

func TestParseKeywordQueryBlankMeansUnfiltered(t *testing.T) {
	for _, raw := range []string{"", "   ", ",, ,"} {
		terms, err := ParseKeywordQuery(raw)
		if err != nil {
			t.Fatalf("ParseKeywordQuery(%q) error = %v", raw, err)
		}
		if len(terms) != 0 {
			t.Fatalf("expected no terms for %q, got %v", raw, terms)
		}
	}
}

func TestParseKeywordQueryRejectsTooManyTerms(t *testing.T) {
	parts := make([]string, 0, MaxQueryTerms+1)
	for i := 0; i <= MaxQueryTerms; i++ {
		parts = append(parts, "t"+strings.Repeat("x", i))
	}
	_, err := ParseKeywordQuery(strings.Join(parts, ","))
	if !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestParseKeywordQueryRejectsLongTerm(t *testing.T) {
	_, err := ParseKeywordQuery(strings.Repeat("a", MaxQueryTermLen+1))
	if !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestMatchesAllRequiresEveryTerm(t *testing.T) {
	rec := CvRecord{Status: CvStatusProcessed, Keywords: []string{"python", "aws", "kubernetes"}}

	if !MatchesAll(rec, []string{"python"}) {
		t.Fatalf("expected python to match")
	}
	if !MatchesAll(rec, []string{"PYTHON", "kube"}) {
		t.Fatalf("expected case-insensitive substring match")
	}
	if MatchesAll(rec, []string{"python", "java"}) {
		t.Fatalf("expected AND semantics to reject missing java")
	}
}

func TestMatchesAllSkipsUnprocessedRecords(t *testing.T) {
	for _, status := range []CvStatus{CvStatusPending, CvStatusFailed} {
		rec := CvRecord{Status: status, Keywords: []string{"python"}}
		if MatchesAll(rec, []string{"python"}) {
			t.Fatalf("status %s must not match a keyword filter", status)
		}
		if !MatchesAll(rec, nil) {
			t.Fatalf("status %s must match the unfiltered query", status)
		}
	}
}

func TestSortByUploadedDescBreaksTiesByID(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []CvRecord{
		{ID: "b", UploadedAt: base},
		{ID: "c", UploadedAt: base.Add(time.Hour)},
		{ID: "a", UploadedAt: base},
	}
	SortByUploadedDesc(records)

	got := records[0].ID + records[1].ID + records[2].ID
	if got != "cab" {
		t.Fatalf("expected order cab, got %s", got)
	}
}

func TestCloneDoesNotShareKeywords(t *testing.T) {
	rec := CvRecord{Keywords: []string{"go"}}
	cp := rec.Clone()
	cp.Keywords[0] = "rust"
	if rec.Keywords[0] != "go" {
		t.Fatalf("clone mutated original keywords")
	}
}
