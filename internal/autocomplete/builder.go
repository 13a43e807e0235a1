// Package autocomplete builds phrase suggestions from the corpus and ranks
// them for a typed prefix by salience, click feedback and a document-name
// boost.
package autocomplete

import (
	"math"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/textproc"
)

// Candidate is a phrase proposed for insertion.
type Candidate struct {
	Phrase    string
	Salience  float64
	IsDocName bool
}

// BuildConfig controls phrase extraction and admission thresholds.
type BuildConfig struct {
	MaxPhraseLength  int
	TopWords         int
	WordThreshold    float64
	PhraseThreshold  float64
	DocNameThreshold float64
}

func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		MaxPhraseLength:  5,
		TopWords:         20,
		WordThreshold:    0.01,
		PhraseThreshold:  0.02,
		DocNameThreshold: 0.005,
	}
}

// admits applies the category threshold. Document names are always admitted.
func (c BuildConfig) admits(cand Candidate) bool {
	if cand.IsDocName {
		return true
	}
	if strings.Contains(cand.Phrase, " ") {
		return cand.Salience >= c.PhraseThreshold
	}
	return cand.Salience >= c.WordThreshold
}

// tfidf holds per-document term salience over the cleaned corpus: raw
// counts times smoothed idf, L2-normalized per document.
type tfidf struct {
	docs []map[string]float64
}

func computeTFIDF(cleaned [][]string) tfidf {
	n := len(cleaned)
	df := make(map[string]int)
	counts := make([]map[string]int, n)
	for i, words := range cleaned {
		c := make(map[string]int)
		for _, w := range words {
			if c[w] == 0 {
				df[w]++
			}
			c[w]++
		}
		counts[i] = c
	}

	out := tfidf{docs: make([]map[string]float64, n)}
	for i, c := range counts {
		weights := make(map[string]float64, len(c))
		var sum float64
		for w, tf := range c {
			idf := math.Log(float64(1+n)/float64(1+df[w])) + 1
			v := float64(tf) * idf
			weights[w] = v
			sum += v * v
		}
		if sum > 0 {
			norm := math.Sqrt(sum)
			for w := range weights {
				weights[w] /= norm
			}
		}
		out.docs[i] = weights
	}
	return out
}

// Build extracts admitted candidates from docs: every phrase of up to
// MaxPhraseLength cleaned words, scored by the most salient word it
// contains; each document's name; and each document's top salience words.
// A phrase seen in several documents keeps its highest salience.
func Build(docs []corpus.Document, cfg BuildConfig) []Candidate {
	if cfg.MaxPhraseLength <= 0 {
		cfg.MaxPhraseLength = 5
	}
	cleaned := make([][]string, len(docs))
	for i, d := range docs {
		cleaned[i] = strings.Fields(textproc.Clean(d.OriginalContent))
	}
	weights := computeTFIDF(cleaned)

	set := newCandidateSet()
	for i, words := range cleaned {
		salience := weights.docs[i]
		for start := range words {
			best := 0.0
			for end := start + 1; end <= len(words) && end-start <= cfg.MaxPhraseLength; end++ {
				best = math.Max(best, salience[words[end-1]])
				set.add(Candidate{Phrase: strings.Join(words[start:end], " "), Salience: best})
			}
		}
	}

	for _, d := range docs {
		if name := strings.ToLower(strings.TrimSpace(d.Name)); name != "" {
			set.add(Candidate{Phrase: name, Salience: 1.0, IsDocName: true})
		}
		if name := textproc.Clean(d.Name); name != "" {
			set.add(Candidate{Phrase: name, Salience: 1.0, IsDocName: true})
		}
	}

	if cfg.TopWords > 0 {
		for i := range cleaned {
			for _, w := range topWords(weights.docs[i], cfg.TopWords) {
				set.add(Candidate{Phrase: w, Salience: weights.docs[i][w]})
			}
		}
	}

	out := make([]Candidate, 0, len(set.order))
	for _, p := range set.order {
		if c := set.items[p]; cfg.admits(c) {
			out = append(out, c)
		}
	}
	return out
}

func topWords(weights map[string]float64, n int) []string {
	words := make([]string, 0, len(weights))
	for w := range weights {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if weights[words[i]] != weights[words[j]] {
			return weights[words[i]] > weights[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}

// candidateSet merges candidates with the same phrase: salience takes the
// maximum and the document-name flag is OR-ed.
type candidateSet struct {
	order []string
	items map[string]Candidate
}

func newCandidateSet() *candidateSet {
	return &candidateSet{items: make(map[string]Candidate)}
}

func (s *candidateSet) add(c Candidate) {
	existing, ok := s.items[c.Phrase]
	if !ok {
		s.order = append(s.order, c.Phrase)
		s.items[c.Phrase] = c
		return
	}
	existing.Salience = math.Max(existing.Salience, c.Salience)
	existing.IsDocName = existing.IsDocName || c.IsDocName
	s.items[c.Phrase] = existing
}
