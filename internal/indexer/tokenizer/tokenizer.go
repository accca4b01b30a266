// Package tokenizer turns raw document text into index terms. It NFKC
// normalises and lower-cases input, splits on non-alphanumeric boundaries,
// removes stop-words, and stems what is left.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/surgebase/porter2"
	"golang.org/x/text/unicode/norm"
)

// TokenizeFunc is the boundary between the index builder and text
// normalisation. Implementations must be pure and deterministic.
type TokenizeFunc func(text string) []string

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// New returns a TokenizeFunc using the named stemmer: "simple", "porter2",
// or "none".
func New(stemmer string) (TokenizeFunc, error) {
	var stemFn func(string) string
	switch stemmer {
	case "", "simple":
		stemFn = stem
	case "porter2":
		stemFn = porter2.Stem
	case "none":
		stemFn = func(w string) string { return w }
	default:
		return nil, fmt.Errorf("unknown stemmer %q", stemmer)
	}
	return func(text string) []string {
		return tokenize(text, stemFn)
	}, nil
}

// Tokenize splits text with the simple suffix stemmer.
func Tokenize(text string) []string {
	return tokenize(text, stem)
}

// Whitespace splits on white space only and keeps case. Useful when
// documents are already normalised.
func Whitespace(text string) []string {
	return strings.Fields(text)
}

func tokenize(text string, stemFn func(string) string) []string {
	text = strings.ToLower(norm.NFKC.String(text))
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words)/2)
	for _, word := range words {
		if utf8.RuneCountInString(word) < 2 {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		stemmed := stemFn(word)
		if stemmed == "" {
			continue
		}
		terms = append(terms, stemmed)
	}
	return terms
}

// stem applies a simple suffix-stripping stemmer to the given word.
func stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}

var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}
