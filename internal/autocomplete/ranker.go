package autocomplete

import (
	"sort"
	"unicode/utf8"
)

// Item is a stored suggestion.
type Item struct {
	Phrase    string  `json:"phrase"`
	Salience  float64 `json:"salience"`
	Clicks    int64   `json:"click_count"`
	IsDocName bool    `json:"is_doc_name"`
}

// Weights blend the three ranking signals.
type Weights struct {
	Salience float64
	Click    float64
	DocName  float64
}

func DefaultWeights() Weights {
	return Weights{Salience: 0.3, Click: 0.3, DocName: 0.4}
}

// Score combines salience, click share of the corpus-wide maximum and the
// document-name flag. A zero maximum contributes nothing.
func (w Weights) Score(it Item, maxClicks int64) float64 {
	clickShare := 0.0
	if maxClicks > 0 {
		clickShare = float64(it.Clicks) / float64(maxClicks)
	}
	docName := 0.0
	if it.IsDocName {
		docName = 1
	}
	return w.Salience*it.Salience + w.Click*clickShare + w.DocName*docName
}

// Rank orders items by combined score, then shorter phrase, then phrase
// text, and truncates to limit.
func (w Weights) Rank(items []Item, maxClicks int64, limit int) []Item {
	type scored struct {
		item  Item
		score float64
		runes int
	}
	ss := make([]scored, len(items))
	for i, it := range items {
		ss[i] = scored{item: it, score: w.Score(it, maxClicks), runes: utf8.RuneCountInString(it.Phrase)}
	}
	sort.SliceStable(ss, func(i, j int) bool {
		if ss[i].score != ss[j].score {
			return ss[i].score > ss[j].score
		}
		if ss[i].runes != ss[j].runes {
			return ss[i].runes < ss[j].runes
		}
		return ss[i].item.Phrase < ss[j].item.Phrase
	})
	if limit > 0 && len(ss) > limit {
		ss = ss[:limit]
	}
	out := make([]Item, len(ss))
	for i, s := range ss {
		out[i] = s.item
	}
	return out
}
