package retrieval

import (
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/snippet"
)

// Render builds the result record for doc: highlighted name and body, a
// snippet around the first query match and the clamped score.
func Render(doc corpus.Document, query string, score float64) Result {
	return Result{
		Path:               doc.Path,
		Name:               doc.Name,
		HighlightedName:    snippet.Highlight(doc.Name, query),
		ContentSnippet:     snippet.Find(doc.OriginalContent, query, snippet.DefaultLength),
		Content:            doc.Content,
		OriginalContent:    doc.OriginalContent,
		HighlightedContent: snippet.Highlight(doc.OriginalContent, query),
		ContentLength:      len([]rune(doc.OriginalContent)),
		Score:              ClampPercent(score),
	}
}
