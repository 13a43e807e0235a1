package fusion

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/retrieval"
)

// accumulator sums per-document contributions. A document's total starts at
// zero on first sight, and first-sight order is kept for tie-breaking.
type accumulator struct {
	order     []string
	totals    map[string]float64
	docs      map[string]retrieval.Result
	breakdown map[string]map[string]Contribution
}

func newAccumulator() *accumulator {
	return &accumulator{
		totals:    make(map[string]float64),
		docs:      make(map[string]retrieval.Result),
		breakdown: make(map[string]map[string]Contribution),
	}
}

// add credits c to r's document. The first record seen for a path is kept;
// chunks from a later record fill in when the first had none.
func (a *accumulator) add(method string, r retrieval.Result, c Contribution) {
	existing, seen := a.docs[r.Path]
	if !seen {
		a.order = append(a.order, r.Path)
		a.docs[r.Path] = r
		a.breakdown[r.Path] = make(map[string]Contribution)
	} else if len(existing.Chunks) == 0 && len(r.Chunks) > 0 {
		existing.Chunks = r.Chunks
		a.docs[r.Path] = existing
	}
	a.totals[r.Path] += c.Contribution
	a.breakdown[r.Path][method] = c
}

// ranked rescales totals so the maximum is 100 and returns documents sorted
// by score, ties in first-seen order. When every total is zero all scores
// are zero.
func (a *accumulator) ranked() []Output {
	var maxTotal float64
	for _, t := range a.totals {
		if t > maxTotal {
			maxTotal = t
		}
	}

	out := make([]Output, 0, len(a.order))
	for _, path := range a.order {
		r := a.docs[path]
		if maxTotal > 0 {
			r.Score = retrieval.ClampPercent(a.totals[path] / maxTotal * 100)
		} else {
			r.Score = 0
		}
		out = append(out, Output{Result: r, Breakdown: a.breakdown[path]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
