// Package textproc normalizes free text for indexing and querying. The same
// pipeline runs over documents at build time and over queries at search
// time, so both sides agree on the vocabulary.
package textproc

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

var stopWords = map[string]struct{}{
	"a": {}, "about": {}, "above": {}, "after": {}, "again": {}, "against": {},
	"all": {}, "am": {}, "an": {}, "and": {}, "any": {}, "are": {}, "as": {},
	"at": {}, "be": {}, "because": {}, "been": {}, "before": {}, "being": {},
	"below": {}, "between": {}, "both": {}, "but": {}, "by": {}, "can": {},
	"did": {}, "do": {}, "does": {}, "doing": {}, "down": {}, "during": {},
	"each": {}, "few": {}, "for": {}, "from": {}, "further": {}, "had": {},
	"has": {}, "have": {}, "having": {}, "he": {}, "her": {}, "here": {},
	"hers": {}, "herself": {}, "him": {}, "himself": {}, "his": {}, "how": {},
	"i": {}, "if": {}, "in": {}, "into": {}, "is": {}, "it": {}, "its": {},
	"itself": {}, "just": {}, "me": {}, "more": {}, "most": {}, "my": {},
	"myself": {}, "no": {}, "nor": {}, "not": {}, "now": {}, "of": {}, "off": {},
	"on": {}, "once": {}, "only": {}, "or": {}, "other": {}, "our": {},
	"ours": {}, "ourselves": {}, "out": {}, "over": {}, "own": {}, "same": {},
	"she": {}, "should": {}, "so": {}, "some": {}, "such": {}, "than": {},
	"that": {}, "the": {}, "their": {}, "theirs": {}, "them": {},
	"themselves": {}, "then": {}, "there": {}, "these": {}, "they": {},
	"this": {}, "those": {}, "through": {}, "to": {}, "too": {}, "under": {},
	"until": {}, "up": {}, "very": {}, "was": {}, "we": {}, "were": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "while": {}, "who": {},
	"whom": {}, "why": {}, "will": {}, "with": {}, "you": {}, "your": {},
	"yours": {}, "yourself": {}, "yourselves": {},
}

// Words lowercases text and splits it on anything that is not a letter or digit.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Terms returns the stemmed, stop-word free terms of text in order.
func Terms(text string) []string {
	words := Words(text)
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) < 2 {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		if stemmed := english.Stem(word, false); stemmed != "" {
			terms = append(terms, stemmed)
		}
	}
	return terms
}

// Normalize runs the indexing pipeline over text: lowercase, tokenize, drop
// stop words, stem, then append adjacent-term bigrams joined with '_'. The
// result is whitespace-delimited.
func Normalize(text string) string {
	terms := Terms(text)
	if len(terms) == 0 {
		return ""
	}
	out := make([]string, 0, 2*len(terms)-1)
	out = append(out, terms...)
	for i := 0; i+1 < len(terms); i++ {
		out = append(out, terms[i]+"_"+terms[i+1])
	}
	return strings.Join(out, " ")
}

var (
	linkPattern     = regexp.MustCompile(`https?://\S+|www\.\S+`)
	nonAlnumPattern = regexp.MustCompile(`[^a-z0-9\s]`)
)

var cleanStopWords = map[string]struct{}{
	"www": {}, "http": {}, "https": {},
}

// Clean prepares text for autocomplete phrase extraction. Unlike Normalize it
// keeps surface word forms and stop words. Links, single characters and
// pure numbers are removed.
func Clean(text string) string {
	text = strings.ToLower(text)
	text = linkPattern.ReplaceAllString(text, " ")
	text = nonAlnumPattern.ReplaceAllString(text, " ")

	words := strings.Fields(text)
	cleaned := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) < 2 || isDigits(word) {
			continue
		}
		if _, skip := cleanStopWords[word]; skip {
			continue
		}
		cleaned = append(cleaned, word)
	}
	return strings.Join(cleaned, " ")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
