// Package retrieval defines the result record shared by every retrieval
// method and the registry that maps method names to providers.
package retrieval

import (
	"context"
	"math"
)

// Chunk is a scored sub-document passage.
type Chunk struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Result is one document returned by a retrieval method. Path is unique
// within a single method's list. Score is on the method's own scale; the
// providers in this module all report 0 to 100.
type Result struct {
	Path               string  `json:"path"`
	Name               string  `json:"name"`
	HighlightedName    string  `json:"highlighted_name"`
	ContentSnippet     string  `json:"content_snippet"`
	Content            string  `json:"content,omitempty"`
	OriginalContent    string  `json:"original_content,omitempty"`
	HighlightedContent string  `json:"highlighted_content"`
	ContentLength      int     `json:"content_length"`
	Score              float64 `json:"relevance_score"`
	Chunks             []Chunk `json:"chunks,omitempty"`
}

// Provider is a retrieval method. Search returns at most k results ordered
// best first.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, k int) ([]Result, error)
}

// ScaleToPercent rescales scores in place so the best result scores 100.
// Lists whose best score is not positive are clamped to zero.
func ScaleToPercent(results []Result) []Result {
	var best float64
	for _, r := range results {
		if r.Score > best {
			best = r.Score
		}
	}
	for i := range results {
		if best <= 0 {
			results[i].Score = 0
			continue
		}
		results[i].Score = ClampPercent(results[i].Score / best * 100)
	}
	return results
}

// ClampPercent bounds s to [0, 100], mapping NaN to 0.
func ClampPercent(s float64) float64 {
	switch {
	case math.IsNaN(s), s < 0:
		return 0
	case s > 100:
		return 100
	default:
		return s
	}
}
