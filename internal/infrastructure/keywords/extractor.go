package keywords

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMaxKeywords = 200
	minTokenLen        = 2
)

// Extractor turns CV text into catalog keywords: lower-cased tokens in
// first-occurrence order with stop words and bare numbers removed.
type Extractor struct {
	maxKeywords int
	stopWords   map[string]struct{}
}

func NewExtractor(maxKeywords int) *Extractor {
	if maxKeywords <= 0 {
		maxKeywords = DefaultMaxKeywords
	}
	return &Extractor{maxKeywords: maxKeywords, stopWords: defaultStopWords}
}

func (e *Extractor) Extract(text string) []string {
	out := make([]string, 0, 64)
	seen := make(map[string]struct{}, 64)
	for _, token := range tokenize(text) {
		if utf8.RuneCountInString(token) < minTokenLen || isNumber(token) {
			continue
		}
		if _, stop := e.stopWords[token]; stop {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
		if len(out) >= e.maxKeywords {
			break
		}
	}
	return out
}

// tokenize splits on anything that is not a letter, digit, '+' or '#', so
// c++ and c# stay intact. Leading '+' and '#' are dropped.
func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 64)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	for _, r := range s {
		r = unicode.ToLower(r)
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case (r == '+' || r == '#') && b.Len() > 0:
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return out
}

func isNumber(token string) bool {
	for _, r := range token {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
