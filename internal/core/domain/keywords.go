package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	MaxQueryTerms   = 20
	MaxQueryTermLen = 64
)

// ParseKeywordQuery turns the comma separated "keywords" parameter into
// normalized search terms. An empty or blank value yields no terms.
func ParseKeywordQuery(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	terms := NormalizeKeywords(strings.Split(raw, ","))
	if len(terms) > MaxQueryTerms {
		return nil, WrapError(ErrInvalidInput, "parse keywords",
			fmt.Errorf("too many terms: %d > %d", len(terms), MaxQueryTerms))
	}
	for _, term := range terms {
		if utf8.RuneCountInString(term) > MaxQueryTermLen {
			return nil, WrapError(ErrInvalidInput, "parse keywords",
				errors.New("term exceeds maximum length"))
		}
	}
	return terms, nil
}

// NormalizeKeywords lower-cases and trims terms, dropping blanks and
// duplicates while keeping first-occurrence order.
func NormalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// MatchesAll reports whether every term is a substring of at least one of
// the record keywords. Only processed records can match a non-empty filter.
func MatchesAll(rec CvRecord, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	if rec.Status != CvStatusProcessed {
		return false
	}
	for _, term := range terms {
		term = strings.ToLower(term)
		found := false
		for _, kw := range rec.Keywords {
			if strings.Contains(strings.ToLower(kw), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SortByUploadedDesc orders records most recent first with cv_id as tie-break.
func SortByUploadedDesc(records []CvRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].UploadedAt.Equal(records[j].UploadedAt) {
			return records[i].UploadedAt.After(records[j].UploadedAt)
		}
		return records[i].ID < records[j].ID
	})
}
