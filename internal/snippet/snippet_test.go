package snippet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- Find ---

func TestFindMarksMatchWithLeadingEllipsis(t *testing.T) {
	got := Find("The quick brown fox", "fox", 10)

	assert.Equal(t, "... brown <mark>fox</mark>", got)
	assert.True(t, strings.HasPrefix(got, "..."))
	assert.Contains(t, got, "<mark>fox</mark>")
}

func TestFindNoMatchFallsBackToHead(t *testing.T) {
	text := strings.Repeat("a", 150)

	got := Find(text, "zebra", 100)

	assert.Equal(t, strings.Repeat("a", 100)+"...", got)
}

func TestFindShortTextNoMatchStillAddsEllipsis(t *testing.T) {
	assert.Equal(t, "hello...", Find("hello", "zebra", 100))
}

func TestFindCentersWindow(t *testing.T) {
	text := strings.Repeat("x", 200) + "needle" + strings.Repeat("y", 200)

	got := Find(text, "needle", 100)

	assert.True(t, strings.HasPrefix(got, "..."))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Contains(t, got, "<mark>needle</mark>")
	assert.Equal(t, 100+6+len("<mark></mark>"), len(got))
}

func TestFindEarliestTermWins(t *testing.T) {
	text := "alpha " + strings.Repeat("-", 300) + " beta"

	got := Find(text, "beta alpha", 20)

	assert.True(t, strings.HasPrefix(got, "<mark>alpha</mark>"))
	assert.NotContains(t, got, "beta")
}

func TestFindCaseInsensitive(t *testing.T) {
	got := Find("Go is GREAT", "great", 100)
	assert.Equal(t, "Go is <mark>GREAT</mark>", got)
}

func TestFindMultibyte(t *testing.T) {
	got := Find("café au lait", "lait", 100)
	assert.Equal(t, "café au <mark>lait</mark>", got)
}

// --- Highlight ---

func TestHighlight(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		query string
		want  string
	}{
		{"all occurrences", "fox and Fox", "fox", "<mark>fox</mark> and <mark>Fox</mark>"},
		{"short terms skipped", "a cat", "a cat", "a <mark>cat</mark>"},
		{"regex metacharacters literal", "c++ rocks", "c++", "<mark>c++</mark> rocks"},
		{"no terms", "plain", "", "plain"},
		{"later term rewraps markup", "mark", "mark", "<mark>mark</mark>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Highlight(tt.text, tt.query))
		})
	}
}

func TestHighlightOverlappingTermsAccepted(t *testing.T) {
	got := Highlight("market", "market mark")
	assert.Equal(t, "<<mark>mark</mark>><mark>mark</mark>et</<mark>mark</mark>>", got)
}
