package fusion

// LinearCombination scores each result as position * relevance * weight,
// where position is M-r for 0-based rank r in a list of M results and
// relevance is the source score divided by 100. Contributions are summed per
// document; a method that did not return a document adds nothing.
func LinearCombination(lists []MethodResults, cfg Config) []Output {
	acc := newAccumulator()
	for _, ml := range lists {
		weight := cfg.weight(ml.Method, len(lists))
		m := len(ml.Results)
		for rank, r := range ml.Results {
			position := float64(m - rank)
			relevance := r.Score / 100
			acc.add(ml.Method, r, Contribution{
				Rank:          rank + 1,
				PositionScore: position,
				Relevance:     relevance,
				Weight:        weight,
				Contribution:  position * relevance * weight,
			})
		}
	}
	return acc.ranked()
}
