package answer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/fusion"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/retrieval"
)

const (
	DefaultContextChars = 2000
	// minPartialChunk is the smallest remainder worth filling with a
	// truncated chunk.
	minPartialChunk = 200
)

// UsedChunk is a passage placed into the prompt context.
type UsedChunk struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	DocPath string  `json:"doc_path"`
}

// PrepareContext selects passages from results, best document first and
// each document's chunks best first, until maxChars runes are used. A
// result without chunks contributes its snippet. The returned string
// numbers each passage with its score.
func PrepareContext(results []fusion.Output, maxChars int) (string, []UsedChunk) {
	if maxChars <= 0 {
		maxChars = DefaultContextChars
	}
	seen := make(map[string]bool)
	var (
		used  []UsedChunk
		total int
	)
	for _, r := range results {
		if seen[r.Path] {
			continue
		}
		seen[r.Path] = true

		chunks := append([]retrieval.Chunk(nil), r.Chunks...)
		if len(chunks) == 0 {
			chunks = []retrieval.Chunk{{Content: r.ContentSnippet, Score: r.Score}}
		}
		sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })

		for _, c := range chunks {
			content := []rune(c.Content)
			if total+len(content) <= maxChars {
				used = append(used, UsedChunk{Content: c.Content, Score: c.Score, DocPath: r.Path})
				total += len(content)
				continue
			}
			if remaining := maxChars - total; remaining > minPartialChunk {
				used = append(used, UsedChunk{Content: string(content[:remaining]), Score: c.Score, DocPath: r.Path})
				total = maxChars
			}
			break
		}
		if total >= maxChars {
			break
		}
	}

	parts := make([]string, 0, len(used))
	for i, c := range used {
		parts = append(parts, fmt.Sprintf("[Chunk %d] (Score: %.2f)\n%s\n", i+1, c.Score, c.Content))
	}
	return strings.Join(parts, "\n"), used
}
