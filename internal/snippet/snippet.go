// Package snippet extracts display windows around query matches and wraps
// matched terms in <mark> tags.
package snippet

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultLength is the window size, in characters, used by Find.
const DefaultLength = 100

const ellipsis = "..."

// Find returns a highlighted window of text around the earliest occurrence of
// any query term. Matching is a case-insensitive substring search. When no
// term occurs the window is the head of text followed by an ellipsis.
func Find(text, query string, length int) string {
	if length <= 0 {
		length = DefaultLength
	}
	runes := []rune(text)
	lowered := lowerRunes(runes)

	earliest := -1
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if pos := indexRunes(lowered, []rune(term)); pos >= 0 && (earliest < 0 || pos < earliest) {
			earliest = pos
		}
	}

	if earliest < 0 {
		head := runes
		if len(head) > length {
			head = head[:length]
		}
		return Highlight(string(head)+ellipsis, query)
	}

	start := max(0, earliest-length/2)
	end := min(len(runes), start+length)
	if end == len(runes) {
		start = max(0, end-length)
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString(ellipsis)
	}
	b.WriteString(string(runes[start:end]))
	if end < len(runes) {
		b.WriteString(ellipsis)
	}
	return Highlight(b.String(), query)
}

// Highlight wraps every case-insensitive occurrence of each query term of two
// or more characters in <mark></mark>. Terms are applied in query order, so a
// later term may match inside markup added for an earlier one.
func Highlight(text, query string) string {
	out := text
	for _, term := range strings.Fields(query) {
		if len([]rune(term)) < 2 {
			continue
		}
		re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(term))
		out = re.ReplaceAllString(out, "<mark>$0</mark>")
	}
	return out
}

func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return 0
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, r := range needle {
			if haystack[i+j] != r {
				continue outer
			}
		}
		return i
	}
	return -1
}
