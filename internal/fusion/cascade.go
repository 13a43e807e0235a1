package fusion

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/retrieval"
)

// CascadeSearch walks methods in caller order and stops at the first one
// with a result whose weighted score, (score/100) * weight, reaches the
// threshold. If none does, the top results of the last method are returned
// as a fallback. Every output carries the full attempt history.
func CascadeSearch(lists []MethodResults, cfg Config) []Output {
	if len(lists) == 0 {
		return []Output{}
	}
	fallbackN := cfg.CascadeFallback
	if fallbackN <= 0 {
		fallbackN = DefaultCascadeFallback
	}

	accepted := make(map[string]struct{})
	attempts := make([]Attempt, 0, len(lists))
	var out []Output
	for _, ml := range lists {
		weight := cfg.weight(ml.Method, len(lists))
		var current []Output
		var maxSeen float64
		for _, r := range ml.Results {
			weighted := r.Score / 100 * weight
			if weighted > maxSeen {
				maxSeen = weighted
			}
			if weighted < cfg.CascadeThreshold {
				continue
			}
			if _, dup := accepted[r.Path]; dup {
				continue
			}
			accepted[r.Path] = struct{}{}
			current = append(current, Output{
				Result:        r,
				MethodFound:   ml.Method,
				WeightedScore: weighted,
			})
		}
		attempts = append(attempts, Attempt{
			Method:       ml.Method,
			ResultsFound: len(current),
			MaxScore:     maxSeen,
		})
		if len(current) > 0 {
			out = append(out, current...)
			break
		}
	}

	if len(out) == 0 {
		last := lists[len(lists)-1]
		weight := cfg.weight(last.Method, len(lists))
		top := last.Results
		if len(top) > fallbackN {
			top = top[:fallbackN]
		}
		for _, r := range top {
			out = append(out, Output{
				Result:        r,
				MethodFound:   last.Method,
				WeightedScore: r.Score / 100 * weight,
				Fallback:      true,
			})
		}
	}

	for i := range out {
		out[i].Score = retrieval.ClampPercent(out[i].Score)
		out[i].Attempts = attempts
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if out == nil {
		out = []Output{}
	}
	return out
}
